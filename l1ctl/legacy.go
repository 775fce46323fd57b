package l1ctl

import (
	"encoding/binary"
	"fmt"

	"github.com/ftl/gsm-ms/gsm"
)

// LegacyMsgType is the message type of the first generation of the interface, which is still
// spoken by old layer 1 firmware images. Multi-octet fields of this generation use the byte order
// of the ARM target, which is little endian.
type LegacyMsgType uint8

// Message types of the legacy interface
const (
	LegacyNewCCCHReq  LegacyMsgType = 1
	LegacyNewCCCHResp LegacyMsgType = 2
	LegacyDataInd     LegacyMsgType = 3
	LegacyRACHReq     LegacyMsgType = 4
	LegacyDMEstReq    LegacyMsgType = 5
	LegacyDataReq     LegacyMsgType = 7
	LegacyReset       LegacyMsgType = 8
)

var legacyMsgTypeNames = map[LegacyMsgType]string{
	LegacyNewCCCHReq:  "NEW_CCCH_REQ",
	LegacyNewCCCHResp: "NEW_CCCH_RESP",
	LegacyDataInd:     "DATA_IND",
	LegacyRACHReq:     "RACH_REQ",
	LegacyDMEstReq:    "DM_EST_REQ",
	LegacyDataReq:     "DATA_REQ",
	LegacyReset:       "RESET",
}

func (t LegacyMsgType) String() string {
	name, ok := legacyMsgTypeNames[t]
	if !ok {
		return fmt.Sprintf("L1CTL-legacy(%d)", uint8(t))
	}
	return name
}

// Downlink messages of the legacy interface carry the message type and the downlink info in one header.
const (
	LegacyDLHdrLen = 24
	LegacyULHdrLen = 6
)

// LegacyDLHdr is the header of legacy downlink messages.
type LegacyDLHdr struct {
	MsgType   LegacyMsgType
	ChanNr    gsm.ChanNr
	LinkID    gsm.LinkID
	BandARFCN gsm.BandARFCN
	Time      gsm.Time
	RxLevel   uint8
	SNR       [4]uint16
}

func ParseLegacyDLHdr(bytes []byte) (LegacyDLHdr, error) {
	if err := expectLen(bytes, LegacyDLHdrLen); err != nil {
		return LegacyDLHdr{}, err
	}
	le := binary.LittleEndian
	result := LegacyDLHdr{
		MsgType:   LegacyMsgType(bytes[0]),
		ChanNr:    gsm.ChanNr(bytes[2]),
		LinkID:    gsm.LinkID(bytes[3]),
		BandARFCN: gsm.BandARFCN(le.Uint16(bytes[4:6])),
		Time: gsm.Time{
			FN: le.Uint32(bytes[6:10]),
			T1: le.Uint16(bytes[10:12]),
			T2: bytes[12],
			T3: bytes[13],
			TC: bytes[14],
		},
		RxLevel: bytes[15],
	}
	for i := range result.SNR {
		result.SNR[i] = le.Uint16(bytes[16+2*i:])
	}
	return result, nil
}

func (h LegacyDLHdr) Encode(bytes []byte) []byte {
	le := binary.LittleEndian
	bytes = append(bytes, byte(h.MsgType), 0, byte(h.ChanNr), byte(h.LinkID))
	bytes = le.AppendUint16(bytes, uint16(h.BandARFCN))
	bytes = le.AppendUint32(bytes, h.Time.FN)
	bytes = le.AppendUint16(bytes, h.Time.T1)
	bytes = append(bytes, h.Time.T2, h.Time.T3, h.Time.TC, h.RxLevel)
	for _, snr := range h.SNR {
		bytes = le.AppendUint16(bytes, snr)
	}
	return bytes
}

// LegacyULHdr is the header of legacy uplink messages.
type LegacyULHdr struct {
	MsgType LegacyMsgType
	ChanNr  gsm.ChanNr
	LinkID  gsm.LinkID
	TxPower uint8
}

func ParseLegacyULHdr(bytes []byte) (LegacyULHdr, error) {
	if err := expectLen(bytes, LegacyULHdrLen); err != nil {
		return LegacyULHdr{}, err
	}
	return LegacyULHdr{
		MsgType: LegacyMsgType(bytes[0]),
		ChanNr:  gsm.ChanNr(bytes[2]),
		LinkID:  gsm.LinkID(bytes[3]),
		TxPower: bytes[4],
	}, nil
}

func (h LegacyULHdr) Encode(bytes []byte) []byte {
	return append(bytes, byte(h.MsgType), 0, byte(h.ChanNr), byte(h.LinkID), h.TxPower, 0)
}

// LegacyBandARFCN encodes the band_arfcn field of legacy payloads (NEW_CCCH_REQ, DM_EST_REQ).
func LegacyBandARFCN(bytes []byte, arfcn gsm.BandARFCN) []byte {
	return binary.LittleEndian.AppendUint16(bytes, uint16(arfcn))
}
