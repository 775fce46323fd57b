/*
The package amr decodes and encodes the octet aligned RTP payload format of AMR speech frames
(RFC 4867) with the frame types of 3GPP TS 26.101.
*/
package amr

import (
	"errors"
	"fmt"
)

var (
	ErrTooShort    = errors.New("AMR payload too short")
	ErrCompound    = errors.New("compound AMR payloads are not supported")
	ErrInvalidCMR  = errors.New("invalid codec mode request")
	ErrUnsupported = errors.New("unsupported AMR frame type")
)

// Type is the AMR frame type according to 3GPP TS 26.101 table 1a.
type Type uint8

// All frame types
const (
	AMR475 Type = iota
	AMR515
	AMR590
	AMR670
	AMR740
	AMR795
	AMR102
	AMR122
	SID
	GSMEFRSID
	TDMAEFRSID
	PDCEFRSID
	NoData Type = 15
)

var typeNames = map[Type]string{
	AMR475:     "AMR 4,75",
	AMR515:     "AMR 5,15",
	AMR590:     "AMR 5,90",
	AMR670:     "AMR 6,70",
	AMR740:     "AMR 7,40",
	AMR795:     "AMR 7,95",
	AMR102:     "AMR 10,2",
	AMR122:     "AMR 12,2",
	SID:        "AMR SID",
	GSMEFRSID:  "GSM-EFR SID",
	TDMAEFRSID: "TDMA-EFR SID",
	PDCEFRSID:  "PDC-EFR SID",
	NoData:     "NO DATA",
}

func (t Type) String() string {
	name, ok := typeNames[t]
	if !ok {
		return fmt.Sprintf("AMR type %d", uint8(t))
	}
	return name
}

// speech bytes per frame type, 3GPP TS 26.101 table A.1b
var lengths = [16]int{12, 13, 15, 17, 19, 20, 26, 31, 5, 0, 0, 0, 0, 0, 0, 0}

// Len returns the number of speech bytes of a frame of this type.
func (t Type) Len() int {
	return lengths[t&0x0f]
}

// Quality tells if the frame was received without errors.
type Quality uint8

// Frame qualities
const (
	Bad Quality = iota
	Good
)

func (q Quality) String() string {
	if q == Good {
		return "GOOD"
	}
	return "BAD"
}

// SIDType tells if a SID frame starts or updates the comfort noise.
type SIDType int8

// SID types
const (
	NoSID     SIDType = -1
	SIDFirst  SIDType = 0
	SIDUpdate SIDType = 1
)

func (s SIDType) String() string {
	switch s {
	case SIDFirst:
		return "FIRST"
	case SIDUpdate:
		return "UPDATE"
	default:
		return "NONE"
	}
}

// HdrLen is the length of the payload header with one table of contents entry.
const HdrLen = 2

// Frame is a decoded AMR RTP payload.
type Frame struct {
	CMR     uint8 // codec mode request
	Type    Type
	Quality Quality
	STI     SIDType
	CMI     int8 // codec mode indication of SID frames, -1 otherwise
	Data    []byte
}

// DecodeRTP decodes the header of the given payload. The frame's data refers to the payload.
func DecodeRTP(payload []byte) (Frame, error) {
	if len(payload) < HdrLen {
		return Frame{}, fmt.Errorf("%w: %d", ErrTooShort, len(payload))
	}
	if payload[1]&0x80 != 0 {
		return Frame{}, ErrCompound
	}
	ft := Type((payload[1] >> 3) & 0x0f)
	if len(payload) < HdrLen+ft.Len() {
		return Frame{}, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTooShort, ft, HdrLen+ft.Len(), len(payload))
	}

	result := Frame{
		CMR:     payload[0] >> 4,
		Type:    ft,
		Quality: Quality((payload[1] >> 2) & 0x01),
		STI:     NoSID,
		CMI:     -1,
		Data:    payload[HdrLen : HdrLen+ft.Len()],
	}
	if ft == SID {
		sidByte := payload[6]
		result.CMI = int8((sidByte >> 1) & 0x07)
		if sidByte&0x10 != 0 {
			result.STI = SIDUpdate
		} else {
			result.STI = SIDFirst
		}
	}
	return result, nil
}

// EncodeRTP writes the payload header and returns its length. The speech bytes behind the header
// are left untouched.
func EncodeRTP(payload []byte, cmr uint8, ft Type, q Quality) (int, error) {
	if len(payload) < HdrLen {
		return 0, fmt.Errorf("%w: %d", ErrTooShort, len(payload))
	}
	if cmr > 15 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCMR, cmr)
	}
	if ft > 15 {
		return 0, fmt.Errorf("%w: %d", ErrUnsupported, ft)
	}
	payload[0] = cmr << 4
	payload[1] = byte(ft)<<3 | byte(q&0x01)<<2
	return HdrLen, nil
}
