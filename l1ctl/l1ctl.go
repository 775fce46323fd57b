/*
The package l1ctl implements the messages exchanged between layer 1 and layer 2/3 of the mobile
station. All messages start with a four byte header that carries the message type. Multi-octet
fields are transmitted in network byte order.
*/
package l1ctl

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ftl/gsm-ms/gsm"
)

var (
	ErrShortMessage   = errors.New("message too short")
	ErrUnknownMsgType = errors.New("unknown message type")
	ErrInvalidHopping = errors.New("invalid hopping parameters")
)

// MsgType is the type of an L1CTL message.
type MsgType uint8

// All message types of the L1CTL interface
const (
	MsgNone MsgType = iota
	MsgFBSBReq
	MsgFBSBConf
	MsgDataInd
	MsgRACHReq
	MsgDMEstReq
	MsgDataReq
	MsgResetInd
	MsgPMReq
	MsgPMConf
	MsgEchoReq
	MsgEchoConf
	MsgRACHConf
	MsgResetReq
	MsgResetConf
	MsgDataConf
	MsgCCCHModeReq
	MsgCCCHModeConf
	MsgDMRelReq
	MsgParamReq
	MsgDMFreqReq
	MsgCryptoReq
	MsgSIMReq
	MsgSIMConf
	MsgTCHModeReq
	MsgTCHModeConf
	MsgNeighPMReq
	MsgNeighPMInd
	MsgTrafficReq
	MsgTrafficConf
	MsgTrafficInd
	MsgBurstInd
	MsgGPRSULTBFCfgReq
	MsgGPRSDLTBFCfgReq
	MsgGPRSULBlockReq
	MsgGPRSDLBlockInd
	MsgExtRACHReq
	MsgGPRSRTSInd
	MsgGPRSULBlockConf
)

var msgTypeNames = map[MsgType]string{
	MsgNone:            "NONE",
	MsgFBSBReq:         "FBSB_REQ",
	MsgFBSBConf:        "FBSB_CONF",
	MsgDataInd:         "DATA_IND",
	MsgRACHReq:         "RACH_REQ",
	MsgDMEstReq:        "DM_EST_REQ",
	MsgDataReq:         "DATA_REQ",
	MsgResetInd:        "RESET_IND",
	MsgPMReq:           "PM_REQ",
	MsgPMConf:          "PM_CONF",
	MsgEchoReq:         "ECHO_REQ",
	MsgEchoConf:        "ECHO_CONF",
	MsgRACHConf:        "RACH_CONF",
	MsgResetReq:        "RESET_REQ",
	MsgResetConf:       "RESET_CONF",
	MsgDataConf:        "DATA_CONF",
	MsgCCCHModeReq:     "CCCH_MODE_REQ",
	MsgCCCHModeConf:    "CCCH_MODE_CONF",
	MsgDMRelReq:        "DM_REL_REQ",
	MsgParamReq:        "PARAM_REQ",
	MsgDMFreqReq:       "DM_FREQ_REQ",
	MsgCryptoReq:       "CRYPTO_REQ",
	MsgSIMReq:          "SIM_REQ",
	MsgSIMConf:         "SIM_CONF",
	MsgTCHModeReq:      "TCH_MODE_REQ",
	MsgTCHModeConf:     "TCH_MODE_CONF",
	MsgNeighPMReq:      "NEIGH_PM_REQ",
	MsgNeighPMInd:      "NEIGH_PM_IND",
	MsgTrafficReq:      "TRAFFIC_REQ",
	MsgTrafficConf:     "TRAFFIC_CONF",
	MsgTrafficInd:      "TRAFFIC_IND",
	MsgBurstInd:        "BURST_IND",
	MsgGPRSULTBFCfgReq: "GPRS_UL_TBF_CFG_REQ",
	MsgGPRSDLTBFCfgReq: "GPRS_DL_TBF_CFG_REQ",
	MsgGPRSULBlockReq:  "GPRS_UL_BLOCK_REQ",
	MsgGPRSDLBlockInd:  "GPRS_DL_BLOCK_IND",
	MsgExtRACHReq:      "EXT_RACH_REQ",
	MsgGPRSRTSInd:      "GPRS_RTS_IND",
	MsgGPRSULBlockConf: "GPRS_UL_BLOCK_CNF",
}

func (t MsgType) String() string {
	name, ok := msgTypeNames[t]
	if !ok {
		return fmt.Sprintf("L1CTL(%d)", uint8(t))
	}
	return name
}

// FlagDone marks the last message of a sequence.
const FlagDone uint8 = 0x01

const (
	HdrLen    = 4
	InfoDLLen = 12
	InfoULLen = 4
)

// Hdr is the header in front of every message.
type Hdr struct {
	MsgType MsgType
	Flags   uint8
}

func ParseHdr(bytes []byte) (Hdr, error) {
	if len(bytes) < HdrLen {
		return Hdr{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrShortMessage, HdrLen, len(bytes))
	}
	return Hdr{
		MsgType: MsgType(bytes[0]),
		Flags:   bytes[1],
	}, nil
}

func (h Hdr) Encode(bytes []byte) []byte {
	return append(bytes, byte(h.MsgType), h.Flags, 0, 0)
}

// Done reports whether this is the last message of a sequence.
func (h Hdr) Done() bool {
	return h.Flags&FlagDone != 0
}

// InfoDL describes the channel and the reception quality of a downlink message.
type InfoDL struct {
	ChanNr    gsm.ChanNr
	LinkID    gsm.LinkID
	BandARFCN gsm.BandARFCN
	FN        uint32
	RxLevel   uint8 // 0 .. 63
	SNR       uint8
	NumBitErr uint8
	FireCRC   uint8
}

func ParseInfoDL(bytes []byte) (InfoDL, error) {
	if len(bytes) < InfoDLLen {
		return InfoDL{}, fmt.Errorf("%w: downlink info needs %d bytes, got %d", ErrShortMessage, InfoDLLen, len(bytes))
	}
	return InfoDL{
		ChanNr:    gsm.ChanNr(bytes[0]),
		LinkID:    gsm.LinkID(bytes[1]),
		BandARFCN: gsm.BandARFCN(binary.BigEndian.Uint16(bytes[2:4])),
		FN:        binary.BigEndian.Uint32(bytes[4:8]),
		RxLevel:   bytes[8],
		SNR:       bytes[9],
		NumBitErr: bytes[10],
		FireCRC:   bytes[11],
	}, nil
}

func (i InfoDL) Encode(bytes []byte) []byte {
	bytes = append(bytes, byte(i.ChanNr), byte(i.LinkID))
	bytes = binary.BigEndian.AppendUint16(bytes, uint16(i.BandARFCN))
	bytes = binary.BigEndian.AppendUint32(bytes, i.FN)
	return append(bytes, i.RxLevel, i.SNR, i.NumBitErr, i.FireCRC)
}

// CRCError reports whether the block failed the parity check.
func (i InfoDL) CRCError() bool {
	return i.FireCRC >= 2
}

// InfoUL addresses the channel of an uplink message.
type InfoUL struct {
	ChanNr gsm.ChanNr
	LinkID gsm.LinkID
}

func ParseInfoUL(bytes []byte) (InfoUL, error) {
	if len(bytes) < InfoULLen {
		return InfoUL{}, fmt.Errorf("%w: uplink info needs %d bytes, got %d", ErrShortMessage, InfoULLen, len(bytes))
	}
	return InfoUL{
		ChanNr: gsm.ChanNr(bytes[0]),
		LinkID: gsm.LinkID(bytes[1]),
	}, nil
}

func (i InfoUL) Encode(bytes []byte) []byte {
	return append(bytes, byte(i.ChanNr), byte(i.LinkID), 0, 0)
}

// Message is the payload of an L1CTL message, everything behind the header.
type Message interface {
	MsgType() MsgType
	Encode(bytes []byte) []byte
}

// Marshal builds the complete message with its header.
func Marshal(msg Message, flags uint8) []byte {
	bytes := make([]byte, 0, 64)
	bytes = Hdr{MsgType: msg.MsgType(), Flags: flags}.Encode(bytes)
	return msg.Encode(bytes)
}

// Parse decodes a complete message with its header.
func Parse(bytes []byte) (Hdr, Message, error) {
	hdr, err := ParseHdr(bytes)
	if err != nil {
		return Hdr{}, nil, err
	}
	payload := bytes[HdrLen:]

	var msg Message
	switch hdr.MsgType {
	case MsgFBSBReq:
		msg, err = ParseFBSBReq(payload)
	case MsgFBSBConf:
		msg, err = ParseFBSBConf(payload)
	case MsgDataInd:
		msg, err = ParseDataInd(payload)
	case MsgDataReq:
		msg, err = ParseDataReq(payload)
	case MsgDataConf:
		msg, err = parseConf(MsgDataConf, payload)
	case MsgRACHReq:
		msg, err = ParseRACHReq(payload)
	case MsgExtRACHReq:
		msg, err = ParseExtRACHReq(payload)
	case MsgRACHConf:
		msg, err = parseConf(MsgRACHConf, payload)
	case MsgParamReq:
		msg, err = ParseParReq(payload)
	case MsgDMEstReq:
		msg, err = ParseDMEstReq(payload)
	case MsgDMFreqReq:
		msg, err = ParseDMFreqReq(payload)
	case MsgDMRelReq:
		msg = Empty{Type: MsgDMRelReq}
	case MsgEchoReq, MsgEchoConf:
		msg = Echo{Type: hdr.MsgType, Data: append([]byte{}, payload...)}
	case MsgCCCHModeReq, MsgCCCHModeConf:
		msg, err = ParseCCCHMode(hdr.MsgType, payload)
	case MsgTCHModeReq, MsgTCHModeConf:
		msg, err = ParseTCHMode(hdr.MsgType, payload)
	case MsgPMReq:
		msg, err = ParsePMReq(payload)
	case MsgPMConf:
		msg, err = ParsePMConf(payload)
	case MsgResetInd, MsgResetReq, MsgResetConf:
		msg, err = ParseReset(hdr.MsgType, payload)
	case MsgNeighPMReq:
		msg, err = ParseNeighPMReq(payload)
	case MsgNeighPMInd:
		msg, err = ParseNeighPMInd(payload)
	case MsgTrafficReq:
		msg, err = ParseTrafficReq(payload)
	case MsgTrafficInd:
		msg, err = ParseTrafficInd(payload)
	case MsgTrafficConf:
		msg, err = parseConf(MsgTrafficConf, payload)
	case MsgCryptoReq:
		msg, err = ParseCryptoReq(payload)
	case MsgGPRSULTBFCfgReq:
		msg, err = ParseGPRSULTBFCfgReq(payload)
	case MsgGPRSDLTBFCfgReq:
		msg, err = ParseGPRSDLTBFCfgReq(payload)
	case MsgGPRSULBlockReq:
		msg, err = ParseGPRSULBlockReq(payload)
	case MsgGPRSDLBlockInd:
		msg, err = ParseGPRSDLBlockInd(payload)
	case MsgGPRSRTSInd:
		msg, err = ParseGPRSRTSInd(payload)
	default:
		return hdr, nil, fmt.Errorf("%w: %s", ErrUnknownMsgType, hdr.MsgType)
	}
	if err != nil {
		return hdr, nil, fmt.Errorf("cannot parse %s: %w", hdr.MsgType, err)
	}
	return hdr, msg, nil
}

func expectLen(bytes []byte, n int) error {
	if len(bytes) < n {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrShortMessage, n, len(bytes))
	}
	return nil
}
