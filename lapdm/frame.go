/*
The package lapdm implements the data link layer on the GSM air interface (3GPP TS 44.006):
the LAPDm frame formats on top of the LAPD core, the two entities of a dedicated channel (main
channel and SACCH) with their SAPI 0 and SAPI 3 data links, the transmit queues towards layer 1
and the random access primitives.
*/
package lapdm

import (
	"errors"
	"fmt"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/lapd"
)

var (
	ErrShortFrame        = errors.New("frame too short")
	ErrExtendedAddress   = errors.New("EA bit 0 is not allowed")
	ErrMultiOctetLength  = errors.New("multi-octet length is not supported")
	ErrUnsupportedSAPI   = errors.New("unsupported SAPI")
	ErrFrameTooLarge     = errors.New("frame too large")
	ErrMissingMessage    = errors.New("missing layer 3 message")
	ErrNoContext         = errors.New("no data link context")
	ErrNotSupported      = errors.New("not supported in this mode")
	ErrNoFrame           = errors.New("no frame pending")
	ErrInvalidRACHOffset = errors.New("invalid RACH offset")
)

// Service access point identifiers
const (
	SAPINormal uint8 = 0
	SAPISMS    uint8 = 3
)

// Link protocol discriminators
const (
	LPDNormal uint8 = 0
	LPDSMSCB  uint8 = 1
)

// Format of a LAPDm frame (3GPP TS 44.006 2.1)
type Format int

// All frame formats
const (
	FormatA Format = iota
	FormatB
	FormatBbis
	FormatBter
	FormatB4
)

func (f Format) String() string {
	switch f {
	case FormatA:
		return "A"
	case FormatB:
		return "B"
	case FormatBbis:
		return "Bbis"
	case FormatBter:
		return "Bter"
	case FormatB4:
		return "B4"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Maximum length of the information field, depending on the format and channel
const (
	N201ABSACCH    = 18
	N201ABSDCCH    = 20
	N201ABFACCH    = 20
	N201Bbis       = 23
	N201BterSACCH  = 21
	N201BterSDCCH  = 23
	N201BterFACCH  = 23
	N201B4         = 19
	FrameLen       = gsm.MacBlockLen
	PaddingByte    = 0x2b
	l1HeaderLen    = 2
	headerLen      = 3
	lenMore        = 0x02
	lenEL          = 0x01
	maxFrameBuffer = 200
)

// Maximum number of retransmissions, depending on the channel
const (
	N200EstRel    = 5
	N200SACCH     = 5
	N200SDCCH     = 23
	N200FACCHFull = 34
	N200EFACCH    = 48
	N200FACCHHalf = 29
)

// N200ForChan returns the maximum number of retransmissions in timer recovery state for the
// given channel (3GPP TS 44.006 5.8.2.1).
func N200ForChan(chanNr gsm.ChanNr, linkID gsm.LinkID) int {
	if linkID.SACCH() {
		return N200SACCH
	}
	switch chanNr.Type() {
	case gsm.ChanTypeTCHF:
		return N200FACCHFull
	case gsm.ChanTypeTCHH:
		return N200FACCHHalf
	default:
		return N200SDCCH
	}
}

// Addr builds the address octet.
func Addr(lpd, sapi, cr uint8) uint8 {
	return (lpd&0x3)<<5 | (sapi&0x7)<<2 | (cr&0x1)<<1 | 0x1
}

// AddrLPD returns the link protocol discriminator of an address octet.
func AddrLPD(addr uint8) uint8 {
	return (addr >> 5) & 0x3
}

// AddrSAPI returns the SAPI of an address octet.
func AddrSAPI(addr uint8) uint8 {
	return (addr >> 2) & 0x7
}

// AddrCR returns the C/R bit of an address octet.
func AddrCR(addr uint8) uint8 {
	return (addr >> 1) & 0x1
}

// AddrEA returns the address field extension bit.
func AddrEA(addr uint8) bool {
	return addr&0x1 != 0
}

// CtrlI builds the control octet of an I frame.
func CtrlI(nr, ns uint8, p bool) uint8 {
	return (nr&0x7)<<5 | bit(p)<<4 | (ns&0x7)<<1
}

// CtrlS builds the control octet of an S frame.
func CtrlS(nr, s uint8, p bool) uint8 {
	return (nr&0x7)<<5 | bit(p)<<4 | (s&0x3)<<2 | 0x1
}

// CtrlU builds the control octet of a U frame.
func CtrlU(u uint8, p bool) uint8 {
	return (u&0x1c)<<3 | bit(p)<<4 | (u&0x3)<<2 | 0x3
}

func CtrlIsI(ctrl uint8) bool {
	return ctrl&0x1 == 0
}

func CtrlIsS(ctrl uint8) bool {
	return ctrl&0x3 == 1
}

func CtrlIsU(ctrl uint8) bool {
	return ctrl&0x3 == 3
}

// CtrlUBits returns the modifier bits of a U frame.
func CtrlUBits(ctrl uint8) uint8 {
	return (ctrl&0xc)>>2 | (ctrl&0xe0)>>3
}

// CtrlSBits returns the supervisory function bits of an S frame.
func CtrlSBits(ctrl uint8) uint8 {
	return (ctrl & 0xc) >> 2
}

// CtrlPF returns the poll/final bit.
func CtrlPF(ctrl uint8) bool {
	return (ctrl>>4)&0x1 != 0
}

// CtrlNS returns N(S) of an I frame.
func CtrlNS(ctrl uint8) uint8 {
	return (ctrl & 0xe) >> 1
}

// CtrlNR returns N(R) of an I or S frame.
func CtrlNR(ctrl uint8) uint8 {
	return (ctrl & 0xe0) >> 5
}

// Len builds the length indicator octet with EL=1.
func Len(length int, more bool) uint8 {
	result := uint8(length<<2) | lenEL
	if more {
		result |= lenMore
	}
	return result
}

// LenLength returns the length of the information field.
func LenLength(l uint8) int {
	return int(l >> 2)
}

// LenMore returns the more data bit.
func LenMore(l uint8) bool {
	return l&lenMore != 0
}

// LenEL returns the length indicator field extension bit.
func LenEL(l uint8) bool {
	return l&lenEL != 0
}

func bit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Encode builds the address, control and length octets of the given frame, followed by the
// information field. The frame is not padded.
func Encode(msg lapd.Msg) ([]byte, error) {
	result := make([]byte, 0, FrameLen)
	result = append(result, Addr(msg.LPD, msg.SAPI, msg.CR))
	switch msg.Format {
	case lapd.FormatI:
		result = append(result, CtrlI(msg.NR, msg.NS, msg.PF))
	case lapd.FormatS:
		result = append(result, CtrlS(msg.NR, msg.SU, msg.PF))
	case lapd.FormatU:
		result = append(result, CtrlU(msg.SU, msg.PF))
	default:
		return nil, fmt.Errorf("cannot encode frame with format %s", msg.Format)
	}
	result = append(result, Len(len(msg.Payload), msg.More))
	result = append(result, msg.Payload...)
	return result, nil
}

// Decode parses the header of a frame in format A, B or B4. The returned frame carries the
// header fields even if the length octet cannot be decoded (ErrMultiOctetLength).
func Decode(l2 []byte, format Format, n201 int) (lapd.Msg, error) {
	var result lapd.Msg
	if len(l2) < 2 {
		return result, ErrShortFrame
	}
	addr := l2[0]
	ctrl := l2[1]

	result.LPD = AddrLPD(addr)
	result.SAPI = AddrSAPI(addr)
	result.CR = AddrCR(addr)
	result.N201 = n201
	if !AddrEA(addr) {
		return result, ErrExtendedAddress
	}

	switch {
	case CtrlIsI(ctrl):
		result.Format = lapd.FormatI
		result.NS = CtrlNS(ctrl)
		result.NR = CtrlNR(ctrl)
	case CtrlIsS(ctrl):
		result.Format = lapd.FormatS
		result.NR = CtrlNR(ctrl)
		result.SU = CtrlSBits(ctrl)
	default:
		result.Format = lapd.FormatU
		result.SU = CtrlUBits(ctrl)
	}
	result.PF = CtrlPF(ctrl)

	if format == FormatB4 {
		// B4 has no length octet, the information field fills the frame
		result.Length = n201
		result.Payload = l2[2:]
		return result, nil
	}

	if len(l2) < headerLen {
		return result, ErrShortFrame
	}
	if !LenEL(l2[2]) {
		return result, ErrMultiOctetLength
	}
	result.Length = LenLength(l2[2])
	result.More = LenMore(l2[2])
	result.Payload = l2[headerLen:]
	return result, nil
}

// Pad fills the frame up to the given size with the padding octet.
func Pad(frame []byte, size int) []byte {
	for len(frame) < size {
		frame = append(frame, PaddingByte)
	}
	return frame
}
