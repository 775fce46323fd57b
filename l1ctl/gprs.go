package l1ctl

import (
	"encoding/binary"
)

const (
	gprsTBFCfgReqLen  = 8
	gprsBlockHdrLen   = 8
	gprsDLBlockIndLen = gprsBlockHdrLen + 5 + 1
	gprsRTSIndLen     = 8
)

// USFNone is the USF value of a downlink block that carries no USF.
const USFNone uint8 = 0xff

// GPRSULTBFCfgReq configures, or releases with an empty slotmask, an uplink TBF.
type GPRSULTBFCfgReq struct {
	TBFRef   uint8
	Slotmask uint8
	StartFN  uint32
}

func ParseGPRSULTBFCfgReq(bytes []byte) (GPRSULTBFCfgReq, error) {
	if err := expectLen(bytes, gprsTBFCfgReqLen); err != nil {
		return GPRSULTBFCfgReq{}, err
	}
	return GPRSULTBFCfgReq{
		TBFRef:   bytes[0],
		Slotmask: bytes[1],
		StartFN:  binary.BigEndian.Uint32(bytes[4:8]),
	}, nil
}

func (GPRSULTBFCfgReq) MsgType() MsgType { return MsgGPRSULTBFCfgReq }

func (m GPRSULTBFCfgReq) Encode(bytes []byte) []byte {
	bytes = append(bytes, m.TBFRef, m.Slotmask, 0, 0)
	return binary.BigEndian.AppendUint32(bytes, m.StartFN)
}

// GPRSDLTBFCfgReq configures, or releases with an empty slotmask, a downlink TBF.
type GPRSDLTBFCfgReq struct {
	TBFRef   uint8
	Slotmask uint8
	DLTFI    uint8
	StartFN  uint32
}

func ParseGPRSDLTBFCfgReq(bytes []byte) (GPRSDLTBFCfgReq, error) {
	if err := expectLen(bytes, gprsTBFCfgReqLen); err != nil {
		return GPRSDLTBFCfgReq{}, err
	}
	return GPRSDLTBFCfgReq{
		TBFRef:   bytes[0],
		Slotmask: bytes[1],
		DLTFI:    bytes[2],
		StartFN:  binary.BigEndian.Uint32(bytes[4:8]),
	}, nil
}

func (GPRSDLTBFCfgReq) MsgType() MsgType { return MsgGPRSDLTBFCfgReq }

func (m GPRSDLTBFCfgReq) Encode(bytes []byte) []byte {
	bytes = append(bytes, m.TBFRef, m.Slotmask, m.DLTFI, 0)
	return binary.BigEndian.AppendUint32(bytes, m.StartFN)
}

// GPRSULBlockReq carries an uplink RLC/MAC block for the given frame and timeslot.
type GPRSULBlockReq struct {
	FN   uint32
	TN   uint8
	Data []byte
}

func ParseGPRSULBlockReq(bytes []byte) (GPRSULBlockReq, error) {
	if err := expectLen(bytes, gprsBlockHdrLen); err != nil {
		return GPRSULBlockReq{}, err
	}
	return GPRSULBlockReq{
		FN:   binary.BigEndian.Uint32(bytes[0:4]),
		TN:   bytes[4],
		Data: append([]byte{}, bytes[gprsBlockHdrLen:]...),
	}, nil
}

func (GPRSULBlockReq) MsgType() MsgType { return MsgGPRSULBlockReq }

func (m GPRSULBlockReq) Encode(bytes []byte) []byte {
	bytes = binary.BigEndian.AppendUint32(bytes, m.FN)
	bytes = append(bytes, m.TN, 0, 0, 0)
	return append(bytes, m.Data...)
}

// GPRSMeas is the reception quality of a downlink block.
type GPRSMeas struct {
	BER10k uint16 // bit error rate in 0.01%
	CICB   int16  // C/I in centiBel
	RxLev  uint8
}

// GPRSDLBlockInd carries a downlink RLC/MAC block. Data is empty if the block did not pass the
// TFI filter or could not be decoded.
type GPRSDLBlockInd struct {
	FN   uint32
	TN   uint8
	Meas GPRSMeas
	USF  uint8
	Data []byte
}

func ParseGPRSDLBlockInd(bytes []byte) (GPRSDLBlockInd, error) {
	if err := expectLen(bytes, gprsDLBlockIndLen); err != nil {
		return GPRSDLBlockInd{}, err
	}
	return GPRSDLBlockInd{
		FN: binary.BigEndian.Uint32(bytes[0:4]),
		TN: bytes[4],
		Meas: GPRSMeas{
			BER10k: binary.BigEndian.Uint16(bytes[8:10]),
			CICB:   int16(binary.BigEndian.Uint16(bytes[10:12])),
			RxLev:  bytes[12],
		},
		USF:  bytes[13],
		Data: append([]byte{}, bytes[gprsDLBlockIndLen:]...),
	}, nil
}

func (GPRSDLBlockInd) MsgType() MsgType { return MsgGPRSDLBlockInd }

func (m GPRSDLBlockInd) Encode(bytes []byte) []byte {
	bytes = binary.BigEndian.AppendUint32(bytes, m.FN)
	bytes = append(bytes, m.TN, 0, 0, 0)
	bytes = binary.BigEndian.AppendUint16(bytes, m.Meas.BER10k)
	bytes = binary.BigEndian.AppendUint16(bytes, uint16(m.Meas.CICB))
	bytes = append(bytes, m.Meas.RxLev, m.USF)
	return append(bytes, m.Data...)
}

// GPRSRTSInd tells layer 2 that an uplink block can be sent in the given frame and timeslot.
type GPRSRTSInd struct {
	FN  uint32
	TN  uint8
	USF uint8
}

func ParseGPRSRTSInd(bytes []byte) (GPRSRTSInd, error) {
	if err := expectLen(bytes, gprsRTSIndLen); err != nil {
		return GPRSRTSInd{}, err
	}
	return GPRSRTSInd{
		FN:  binary.BigEndian.Uint32(bytes[0:4]),
		TN:  bytes[4],
		USF: bytes[5],
	}, nil
}

func (GPRSRTSInd) MsgType() MsgType { return MsgGPRSRTSInd }

func (m GPRSRTSInd) Encode(bytes []byte) []byte {
	bytes = binary.BigEndian.AppendUint32(bytes, m.FN)
	return append(bytes, m.TN, m.USF, 0, 0)
}
