package gsmtap

import (
	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/l1ctl"
)

// ChannelFor maps an RSL channel number and link identifier to the GSMTAP channel and sub slot.
func ChannelFor(chanNr gsm.ChanNr, linkID gsm.LinkID) (Channel, uint8) {
	var result Channel
	switch chanNr.Type() {
	case gsm.ChanTypeTCHF:
		result = ChannelTCHF
	case gsm.ChanTypeTCHH:
		result = ChannelTCHH
	case gsm.ChanTypeSDCCH4:
		result = ChannelSDCCH4
	case gsm.ChanTypeSDCCH8:
		result = ChannelSDCCH8
	case gsm.ChanTypeBCCH:
		result = ChannelBCCH
	case gsm.ChanTypeRACH:
		result = ChannelRACH
	case gsm.ChanTypePCHAGCH:
		result = ChannelCCCH
	case gsm.ChanTypePDCH:
		result = ChannelPDTCH
	default:
		return ChannelUnknown, 0
	}
	if linkID.SACCH() {
		result |= ChannelACCH
	}
	return result, chanNr.Subslot()
}

// NewDownlink returns the header for a block that was received as described by the given downlink info.
func NewDownlink(info l1ctl.InfoDL) *GSMTAP {
	channel, subslot := ChannelFor(info.ChanNr, info.LinkID)
	return &GSMTAP{
		Version:     Version,
		Type:        TypeUm,
		Timeslot:    info.ChanNr.TN(),
		ARFCN:       uint16(info.BandARFCN) &^ gsm.ARFCNUplink,
		SignalDBm:   int8(gsm.RxLevToDBm(info.RxLevel)),
		SNR:         int8(info.SNR),
		FrameNumber: info.FN,
		SubType:     channel,
		SubSlot:     subslot,
	}
}

// NewUplink returns the header for a block that is sent on the given channel.
func NewUplink(chanNr gsm.ChanNr, linkID gsm.LinkID, arfcn gsm.BandARFCN, fn uint32) *GSMTAP {
	channel, subslot := ChannelFor(chanNr, linkID)
	return &GSMTAP{
		Version:     Version,
		Type:        TypeUm,
		Timeslot:    chanNr.TN(),
		ARFCN:       uint16(arfcn) | gsm.ARFCNUplink,
		FrameNumber: fn,
		SubType:     channel,
		SubSlot:     subslot,
	}
}

// NewPDTCH returns the header for a downlink RLC/MAC block.
func NewPDTCH(ind l1ctl.GPRSDLBlockInd, arfcn gsm.BandARFCN) *GSMTAP {
	return &GSMTAP{
		Version:     Version,
		Type:        TypeUm,
		Timeslot:    ind.TN,
		ARFCN:       uint16(arfcn) &^ gsm.ARFCNUplink,
		SignalDBm:   int8(gsm.RxLevToDBm(ind.Meas.RxLev)),
		FrameNumber: ind.FN,
		SubType:     ChannelPDTCH,
	}
}
