package ctrl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/l1ctl"
)

// respondWith returns a requester that records the request and answers with the given messages.
func respondWith(request *l1ctl.Message, responses ...l1ctl.Message) l1ctl.Requester {
	return l1ctl.RequesterFunc(func(_ context.Context, msg l1ctl.Message) ([]l1ctl.Message, error) {
		*request = msg
		return responses, nil
	})
}

func TestReset(t *testing.T) {
	var request l1ctl.Message
	err := Reset(context.Background(), respondWith(&request, l1ctl.Reset{Type: l1ctl.MsgResetConf, ResetType: l1ctl.ResetFull}), ResetFull)

	assert.NoError(t, err)
	assert.Equal(t, l1ctl.Reset{Type: l1ctl.MsgResetReq, ResetType: l1ctl.ResetFull}, request)

	err = Reset(context.Background(), respondWith(&request), ResetSched)
	assert.ErrorIs(t, err, ErrNoResponse)

	err = Reset(context.Background(), respondWith(&request, l1ctl.Echo{Type: l1ctl.MsgEchoConf}), ResetSched)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestSyncToCell(t *testing.T) {
	tt := []struct {
		desc        string
		conf        l1ctl.FBSBConf
		expectedErr error
	}{
		{"success", l1ctl.FBSBConf{BSIC: 0x23}, nil},
		{"failure", l1ctl.FBSBConf{Result: l1ctl.FBSBResultFailed}, ErrSyncFailed},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			var request l1ctl.Message
			conf, err := SyncToCell(context.Background(), respondWith(&request, tc.conf), 871, CCCHCombined, 63)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.conf, conf)

			req, ok := request.(l1ctl.FBSBReq)
			require.True(t, ok)
			assert.Equal(t, gsm.BandARFCN(871), req.BandARFCN)
			assert.Equal(t, l1ctl.FBSBFlagFB01SB, req.Flags)
			assert.Equal(t, l1ctl.CCCHModeCombined, req.CCCHMode)
			assert.Equal(t, uint16(FBSBTimeout), req.Timeout)
		})
	}
}

func TestMeasurePower(t *testing.T) {
	var request l1ctl.Message
	requester := respondWith(&request,
		l1ctl.PMConf{Results: []l1ctl.PMResult{{BandARFCN: 1, PM: [2]uint8{10, 0}}, {BandARFCN: 2, PM: [2]uint8{11, 0}}}},
		l1ctl.PMConf{Results: []l1ctl.PMResult{{BandARFCN: 3, PM: [2]uint8{12, 0}}}},
	)

	results, err := MeasurePower(context.Background(), requester, 1, 3)

	require.NoError(t, err)
	assert.Equal(t, l1ctl.PMReq{Type: l1ctl.PMTypeRange, From: 1, To: 3}, request)
	assert.Len(t, results, 3)
	assert.Equal(t, gsm.BandARFCN(3), results[2].BandARFCN)
}

func TestSetCCCHMode(t *testing.T) {
	var request l1ctl.Message
	err := SetCCCHMode(context.Background(), respondWith(&request, l1ctl.CCCHMode{Type: l1ctl.MsgCCCHModeConf, Mode: l1ctl.CCCHModeNonCombined}), CCCHNonCombined)
	assert.NoError(t, err)

	err = SetCCCHMode(context.Background(), respondWith(&request, l1ctl.CCCHMode{Type: l1ctl.MsgCCCHModeConf, Mode: l1ctl.CCCHModeNonCombined}), CCCHCombined)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestEcho(t *testing.T) {
	var request l1ctl.Message
	data, err := Echo(context.Background(), respondWith(&request, l1ctl.Echo{Type: l1ctl.MsgEchoConf, Data: []byte{1, 2}}), []byte{1, 2})

	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	assert.Equal(t, l1ctl.Echo{Type: l1ctl.MsgEchoReq, Data: []byte{1, 2}}, request)
}

func TestDedicated(t *testing.T) {
	var request l1ctl.Message
	requester := respondWith(&request)

	err := EstablishDedicated(context.Background(), requester, Dedicated{ChanNr: gsm.ChanNrSDCCH8(1, 3), TSC: 5})
	assert.Error(t, err)

	err = EstablishDedicated(context.Background(), requester, Dedicated{ChanNr: gsm.ChanNrSDCCH8(1, 3), TSC: 5, Hopping: l1ctl.HoppingFixed{BandARFCN: 871}})
	require.NoError(t, err)
	assert.Equal(t, l1ctl.DMEstReq{Info: l1ctl.InfoUL{ChanNr: gsm.ChanNrSDCCH8(1, 3)}, TSC: 5, Hopping: l1ctl.HoppingFixed{BandARFCN: 871}}, request)

	err = SetParams(context.Background(), requester, gsm.ChanNrSDCCH8(1, 3), 3, 5)
	require.NoError(t, err)
	assert.Equal(t, l1ctl.ParReq{Info: l1ctl.InfoUL{ChanNr: gsm.ChanNrSDCCH8(1, 3), LinkID: gsm.LinkIDSACCH}, TA: 3, TxPower: 5}, request)

	err = ReleaseDedicated(context.Background(), requester)
	require.NoError(t, err)
	assert.Equal(t, l1ctl.Empty{Type: l1ctl.MsgDMRelReq}, request)
}

func TestRequestError(t *testing.T) {
	failure := errors.New("failure")
	requester := l1ctl.RequesterFunc(func(context.Context, l1ctl.Message) ([]l1ctl.Message, error) {
		return nil, failure
	})

	assert.ErrorIs(t, SetTCHMode(context.Background(), requester, 1, 0), failure)
	_, err := MeasurePower(context.Background(), requester, 1, 2)
	assert.ErrorIs(t, err, failure)
}

func TestNames(t *testing.T) {
	mode, err := CCCHModeByName(" combined ")
	assert.NoError(t, err)
	assert.Equal(t, CCCHCombined, mode)
	assert.Equal(t, "COMBINED", mode.String())

	_, err = CCCHModeByName("bogus")
	assert.Error(t, err)

	resetType, err := ResetTypeByName("sched")
	assert.NoError(t, err)
	assert.Equal(t, ResetSched, resetType)
	assert.Equal(t, "UNKNOWN", ResetType(17).String())
}
