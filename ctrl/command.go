package ctrl

import (
	"context"
	"errors"
	"fmt"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/l1ctl"
)

var (
	ErrNoResponse         = errors.New("no response received")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrSyncFailed         = errors.New("cannot synchronize to cell")
)

// Defaults of the FBSB request
const (
	FBSBTimeout        = 100 // TDMA frames
	fbsbFreqErrThresh1 = 11000 - 1000
	fbsbFreqErrThresh2 = 1000 - 200
	fbsbNumFreqErrAvg  = 3
)

func singleResponse[T l1ctl.Message](responses []l1ctl.Message) (T, error) {
	var result T
	if len(responses) < 1 {
		return result, ErrNoResponse
	}
	result, ok := responses[0].(T)
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrUnexpectedResponse, responses[0].MsgType())
	}
	return result, nil
}

// Reset resets layer 1 and waits for the confirmation.
func Reset(ctx context.Context, requester l1ctl.Requester, resetType ResetType) error {
	responses, err := requester.Request(ctx, l1ctl.Reset{Type: l1ctl.MsgResetReq, ResetType: uint8(resetType)})
	if err != nil {
		return err
	}
	_, err = singleResponse[l1ctl.Reset](responses)
	return err
}

// SyncToCell searches for the frequency correction and synchronization bursts on the given ARFCN
// and configures the CCCH. It fails with ErrSyncFailed if layer 1 cannot find the cell.
func SyncToCell(ctx context.Context, requester l1ctl.Requester, arfcn gsm.BandARFCN, mode CCCHMode, rxLevExp uint8) (l1ctl.FBSBConf, error) {
	req := l1ctl.FBSBReq{
		BandARFCN:      arfcn,
		Timeout:        FBSBTimeout,
		FreqErrThresh1: fbsbFreqErrThresh1,
		FreqErrThresh2: fbsbFreqErrThresh2,
		NumFreqErrAvg:  fbsbNumFreqErrAvg,
		Flags:          l1ctl.FBSBFlagFB01SB,
		CCCHMode:       uint8(mode),
		RxLevExp:       rxLevExp,
	}
	responses, err := requester.Request(ctx, req)
	if err != nil {
		return l1ctl.FBSBConf{}, err
	}
	result, err := singleResponse[l1ctl.FBSBConf](responses)
	if err != nil {
		return l1ctl.FBSBConf{}, err
	}
	if !result.Success() {
		return result, fmt.Errorf("%w %s: result %d", ErrSyncFailed, arfcn, result.Result)
	}
	return result, nil
}

// MeasurePower measures the received power on all ARFCNs in the given range.
func MeasurePower(ctx context.Context, requester l1ctl.Requester, from, to gsm.BandARFCN) ([]l1ctl.PMResult, error) {
	responses, err := requester.Request(ctx, l1ctl.PMReq{Type: l1ctl.PMTypeRange, From: from, To: to})
	if err != nil {
		return nil, err
	}
	if len(responses) < 1 {
		return nil, ErrNoResponse
	}

	var result []l1ctl.PMResult
	for _, response := range responses {
		conf, ok := response.(l1ctl.PMConf)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, response.MsgType())
		}
		result = append(result, conf.Results...)
	}
	return result, nil
}

// SetCCCHMode changes the CCCH configuration after the cell's system information was read.
func SetCCCHMode(ctx context.Context, requester l1ctl.Requester, mode CCCHMode) error {
	responses, err := requester.Request(ctx, l1ctl.CCCHMode{Type: l1ctl.MsgCCCHModeReq, Mode: uint8(mode)})
	if err != nil {
		return err
	}
	conf, err := singleResponse[l1ctl.CCCHMode](responses)
	if err != nil {
		return err
	}
	if conf.Mode != uint8(mode) {
		return fmt.Errorf("%w: CCCH mode %s instead of %s", ErrUnexpectedResponse, CCCHMode(conf.Mode), mode)
	}
	return nil
}

// SetTCHMode changes the channel mode and audio routing of the active traffic channel.
func SetTCHMode(ctx context.Context, requester l1ctl.Requester, tchMode uint8, audioMode uint8) error {
	responses, err := requester.Request(ctx, l1ctl.TCHMode{Type: l1ctl.MsgTCHModeReq, TCHMode: tchMode, AudioMode: audioMode})
	if err != nil {
		return err
	}
	conf, err := singleResponse[l1ctl.TCHMode](responses)
	if err != nil {
		return err
	}
	if conf.TCHMode != tchMode {
		return fmt.Errorf("%w: TCH mode %d instead of %d", ErrUnexpectedResponse, conf.TCHMode, tchMode)
	}
	return nil
}

// Echo sends the given data to layer 1 and returns what comes back.
func Echo(ctx context.Context, requester l1ctl.Requester, data []byte) ([]byte, error) {
	responses, err := requester.Request(ctx, l1ctl.Echo{Type: l1ctl.MsgEchoReq, Data: data})
	if err != nil {
		return nil, err
	}
	conf, err := singleResponse[l1ctl.Echo](responses)
	if err != nil {
		return nil, err
	}
	return conf.Data, nil
}

// Dedicated describes a dedicated channel as it is assigned by the network.
type Dedicated struct {
	ChanNr    gsm.ChanNr
	TSC       uint8
	Hopping   l1ctl.Hopping
	TCHMode   uint8
	AudioMode uint8
}

// EstablishDedicated switches layer 1 to the given dedicated channel.
func EstablishDedicated(ctx context.Context, requester l1ctl.Requester, channel Dedicated) error {
	if channel.Hopping == nil {
		return fmt.Errorf("no frequency for %s", channel.ChanNr)
	}
	_, err := requester.Request(ctx, l1ctl.DMEstReq{
		Info:      l1ctl.InfoUL{ChanNr: channel.ChanNr},
		TSC:       channel.TSC,
		Hopping:   channel.Hopping,
		TCHMode:   channel.TCHMode,
		AudioMode: channel.AudioMode,
	})
	return err
}

// ReleaseDedicated leaves the dedicated channel.
func ReleaseDedicated(ctx context.Context, requester l1ctl.Requester) error {
	_, err := requester.Request(ctx, l1ctl.Empty{Type: l1ctl.MsgDMRelReq})
	return err
}

// SetParams sets the timing advance and the transmit power level used on the dedicated channel.
func SetParams(ctx context.Context, requester l1ctl.Requester, chanNr gsm.ChanNr, ta int8, txPower uint8) error {
	_, err := requester.Request(ctx, l1ctl.ParReq{
		Info:    l1ctl.InfoUL{ChanNr: chanNr, LinkID: gsm.LinkIDSACCH},
		TA:      ta,
		TxPower: txPower,
	})
	return err
}
