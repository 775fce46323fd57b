package gsm

import "fmt"

// ChanNr is the channel number according to 3GPP TS 48.058 9.3.1.
// Bits 0-2 carry the timeslot, the upper bits (C-bits) select the channel type.
type ChanNr uint8

// C-bits masks and values of the channel number
const (
	ChanNrMaskBm     ChanNr = 0xf8
	ChanNrMaskLm     ChanNr = 0xf0
	ChanNrMaskSDCCH4 ChanNr = 0xe0
	ChanNrMaskSDCCH8 ChanNr = 0xc0

	ChanBmACCHs     ChanNr = 0x08
	ChanLmACCHs     ChanNr = 0x10
	ChanSDCCH4ACCH  ChanNr = 0x20
	ChanSDCCH8ACCH  ChanNr = 0x40
	ChanBCCH        ChanNr = 0x80
	ChanRACH        ChanNr = 0x88
	ChanPCHAGCH     ChanNr = 0x90
	ChanOsmoPDCH    ChanNr = 0xc0
	chanNrTSMask    ChanNr = 0x07
	chanNrCBitsMask ChanNr = 0xf8
)

// ChanType enum of the logical channel types a channel number can address
type ChanType byte

// All channel types that can be addressed by a channel number
const (
	ChanTypeUnknown ChanType = iota
	ChanTypeTCHF
	ChanTypeTCHH
	ChanTypeSDCCH4
	ChanTypeSDCCH8
	ChanTypeBCCH
	ChanTypeRACH
	ChanTypePCHAGCH
	ChanTypePDCH
)

var chanTypeNames = map[ChanType]string{
	ChanTypeUnknown: "UNKNOWN",
	ChanTypeTCHF:    "TCH/F",
	ChanTypeTCHH:    "TCH/H",
	ChanTypeSDCCH4:  "SDCCH/4",
	ChanTypeSDCCH8:  "SDCCH/8",
	ChanTypeBCCH:    "BCCH",
	ChanTypeRACH:    "RACH",
	ChanTypePCHAGCH: "PCH/AGCH",
	ChanTypePDCH:    "PDCH",
}

func (t ChanType) String() string {
	name, ok := chanTypeNames[t]
	if !ok {
		return chanTypeNames[ChanTypeUnknown]
	}
	return name
}

// NewChanNrFromCBits builds a channel number from the five C-bits and the timeslot.
func NewChanNrFromCBits(cbits uint8, tn uint8) ChanNr {
	return ChanNr((cbits&0x1f)<<3 | (tn & 0x07))
}

// ChanNrTCHF returns the channel number of a full rate traffic channel
func ChanNrTCHF(tn uint8) ChanNr {
	return ChanBmACCHs | ChanNr(tn&0x07)
}

// ChanNrTCHH returns the channel number of a half rate traffic channel
func ChanNrTCHH(tn uint8, subslot uint8) ChanNr {
	return ChanLmACCHs | ChanNr(subslot&0x01)<<3 | ChanNr(tn&0x07)
}

// ChanNrSDCCH4 returns the channel number of an SDCCH/4 subchannel
func ChanNrSDCCH4(tn uint8, subslot uint8) ChanNr {
	return ChanSDCCH4ACCH | ChanNr(subslot&0x03)<<3 | ChanNr(tn&0x07)
}

// ChanNrSDCCH8 returns the channel number of an SDCCH/8 subchannel
func ChanNrSDCCH8(tn uint8, subslot uint8) ChanNr {
	return ChanSDCCH8ACCH | ChanNr(subslot&0x07)<<3 | ChanNr(tn&0x07)
}

func ChanNrBCCH(tn uint8) ChanNr {
	return ChanBCCH | ChanNr(tn&0x07)
}

func ChanNrRACH(tn uint8) ChanNr {
	return ChanRACH | ChanNr(tn&0x07)
}

func ChanNrPCHAGCH(tn uint8) ChanNr {
	return ChanPCHAGCH | ChanNr(tn&0x07)
}

// ChanNrPDCH returns the channel number of a packet data channel (Osmocom extension)
func ChanNrPDCH(tn uint8) ChanNr {
	return ChanOsmoPDCH | ChanNr(tn&0x07)
}

// TN returns the timeslot number
func (c ChanNr) TN() uint8 {
	return uint8(c & chanNrTSMask)
}

// CBits returns the five C-bits
func (c ChanNr) CBits() uint8 {
	return uint8(c&chanNrCBitsMask) >> 3
}

// Type decodes the channel type from the C-bits
func (c ChanNr) Type() ChanType {
	switch {
	case c&ChanNrMaskBm == ChanBmACCHs:
		return ChanTypeTCHF
	case c&ChanNrMaskLm == ChanLmACCHs:
		return ChanTypeTCHH
	case c&ChanNrMaskSDCCH4 == ChanSDCCH4ACCH:
		return ChanTypeSDCCH4
	case c&ChanNrMaskSDCCH8 == ChanSDCCH8ACCH:
		return ChanTypeSDCCH8
	case c&chanNrCBitsMask == ChanBCCH:
		return ChanTypeBCCH
	case c&chanNrCBitsMask == ChanRACH:
		return ChanTypeRACH
	case c&chanNrCBitsMask == ChanPCHAGCH:
		return ChanTypePCHAGCH
	case c&chanNrCBitsMask == ChanOsmoPDCH:
		return ChanTypePDCH
	default:
		return ChanTypeUnknown
	}
}

// Subslot returns the subchannel number of TCH/H and SDCCH channels, 0 otherwise
func (c ChanNr) Subslot() uint8 {
	switch c.Type() {
	case ChanTypeTCHH:
		return uint8(c>>3) & 0x01
	case ChanTypeSDCCH4:
		return uint8(c>>3) & 0x03
	case ChanTypeSDCCH8:
		return uint8(c>>3) & 0x07
	default:
		return 0
	}
}

// CommonChannel reports whether this is BCCH or CCCH (LAPDm format Bbis applies)
func (c ChanNr) CommonChannel() bool {
	cbits := c.CBits()
	return cbits == 0x10 || cbits == 0x12
}

func (c ChanNr) String() string {
	switch c.Type() {
	case ChanTypeTCHH, ChanTypeSDCCH4, ChanTypeSDCCH8:
		return fmt.Sprintf("%s(%d) on TS%d", c.Type(), c.Subslot(), c.TN())
	default:
		return fmt.Sprintf("%s on TS%d", c.Type(), c.TN())
	}
}

// LinkID is the link identifier according to 3GPP TS 48.058 9.3.2
type LinkID uint8

// Link identifier bits
const (
	LinkIDSACCH    LinkID = 0x40
	linkIDSAPIMask LinkID = 0x07
)

// NewLinkID returns the link identifier for the given SAPI on the main channel or the SACCH
func NewLinkID(sapi uint8, sacch bool) LinkID {
	result := LinkID(sapi) & linkIDSAPIMask
	if sacch {
		result |= LinkIDSACCH
	}
	return result
}

// SACCH reports whether the link identifier addresses the associated control channel
func (l LinkID) SACCH() bool {
	return l&LinkIDSACCH != 0
}

// SAPI returns the service access point identifier
func (l LinkID) SAPI() uint8 {
	return uint8(l & linkIDSAPIMask)
}

func (l LinkID) String() string {
	if l.SACCH() {
		return fmt.Sprintf("SACCH/SAPI%d", l.SAPI())
	}
	return fmt.Sprintf("DCCH/SAPI%d", l.SAPI())
}
