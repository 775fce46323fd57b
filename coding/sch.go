package coding

import (
	"fmt"

	"github.com/ftl/gsm-ms/bits"
	"github.com/ftl/gsm-ms/conv"
	"github.com/ftl/gsm-ms/gsm"
)

// Synchronisation burst layout according to 3GPP TS 45.002 5.2.5
const (
	SCHCodedBits   = 78
	schHalfLen     = 39
	schTrainingLen = 64
	schDataBits    = 25
)

var schTrainingSeq = bits.UbitsFromString(
	"1011100101100010000001000000111100101101010001010111011000011011")

// SCHInfo is the content of the synchronisation channel: the BSIC and the reduced frame number.
type SCHInfo struct {
	BSIC uint8
	T1   uint16
	T2   uint8
	T3p  uint8 // (T3 - 1) / 10
}

// ParseSCHInfo splits the 25 information bits of the SCH (3GPP TS 44.018 9.1.30).
func ParseSCHInfo(sb uint32) SCHInfo {
	return SCHInfo{
		BSIC: uint8((sb >> 2) & 0x3f),
		T1:   uint16(((sb >> 23) & 0x01) | ((sb >> 7) & 0x1fe) | ((sb << 9) & 0x600)),
		T2:   uint8((sb >> 18) & 0x1f),
		T3p:  uint8(((sb >> 24) & 0x01) | ((sb >> 15) & 0x06)),
	}
}

// NewSCHInfo returns the SCH information for the given BSIC and the given frame.
func NewSCHInfo(bsic uint8, t gsm.Time) SCHInfo {
	return SCHInfo{
		BSIC: bsic,
		T1:   t.T1,
		T2:   t.T2,
		T3p:  (t.T3 - 1) / 10,
	}
}

// Bits packs the SCH information into its 25 bit representation.
func (s SCHInfo) Bits() uint32 {
	t1 := uint32(s.T1)
	t2 := uint32(s.T2)
	t3p := uint32(s.T3p)
	return ((t1 & 0x001) << 23) |
		((t1 & 0x1fe) << 7) |
		((t1 & 0x600) >> 9) |
		((t2 & 0x1f) << 18) |
		((t3p & 0x1) << 24) |
		((t3p & 0x6) << 15) |
		(uint32(s.BSIC&0x3f) << 2)
}

// Time returns the GSM time of the frame that carried the SCH.
func (s SCHInfo) Time() gsm.Time {
	t3 := s.T3p*10 + 1
	return gsm.TimeFromFN(gsm.FNFromTime(s.T1, s.T2, t3))
}

func (s SCHInfo) String() string {
	return fmt.Sprintf("bsic=%d t1=%d t2=%d t3'=%d", s.BSIC, s.T1, s.T2, s.T3p)
}

// SCHDecode decodes the 78 coded soft bits of a synchronisation burst into the 4 byte
// SCH information (25 bits, LSB first).
func SCHDecode(coded []bits.Sbit) ([4]byte, error) {
	var result [4]byte
	if len(coded) < SCHCodedBits {
		return result, fmt.Errorf("%w: %d soft bits", ErrBlockLen, len(coded))
	}
	data := make([]bits.Ubit, conv.GSMSCH.Len)
	_, err := conv.Decode(conv.GSMSCH, coded, data)
	if err != nil {
		return result, err
	}
	if SCHParity.Check(data[:schDataBits], data[schDataBits:]) != 0 {
		return result, ErrParity
	}
	bits.UbitToPbitExt(result[:], 0, data, 0, schDataBits, true)
	return result, nil
}

// SCHEncode encodes the 4 byte SCH information into 78 coded bits.
func SCHEncode(info [4]byte) ([SCHCodedBits]bits.Ubit, error) {
	var result [SCHCodedBits]bits.Ubit
	data := make([]bits.Ubit, conv.GSMSCH.Len)
	bits.PbitToUbitExt(data, 0, info[:], 0, schDataBits, true)
	SCHParity.Set(data[:schDataBits], data[schDataBits:])
	_, err := conv.Encode(conv.GSMSCH, data, result[:])
	return result, err
}

// SCHInfoBytes converts the 25 bit SCH information into the byte representation used by SCHEncode.
func SCHInfoBytes(sb uint32) [4]byte {
	return [4]byte{byte(sb), byte(sb >> 8), byte(sb >> 16), byte(sb >> 24)}
}

// SCHInfoFromBytes converts the result of SCHDecode into the 25 bit SCH information.
func SCHInfoFromBytes(b [4]byte) uint32 {
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}

// SyncBurst composes a synchronisation burst: 3 tail bits, 39 coded bits, 64 bits extended
// training sequence, 39 coded bits, 3 tail bits.
func SyncBurst(burst []bits.Ubit, info SCHInfo) error {
	if len(burst) < BurstLen {
		return fmt.Errorf("burst too short: %d", len(burst))
	}
	coded, err := SCHEncode(SCHInfoBytes(info.Bits()))
	if err != nil {
		return err
	}
	for i := range burst[:BurstLen] {
		burst[i] = 0
	}
	copy(burst[tailLen:], coded[:schHalfLen])
	copy(burst[tailLen+schHalfLen:], schTrainingSeq)
	copy(burst[tailLen+schHalfLen+schTrainingLen:], coded[schHalfLen:])
	return nil
}

// DecodeSyncBurst decodes a received synchronisation burst.
func DecodeSyncBurst(burst []bits.Sbit) (SCHInfo, error) {
	if len(burst) < BurstLen {
		return SCHInfo{}, fmt.Errorf("burst too short: %d", len(burst))
	}
	coded := make([]bits.Sbit, SCHCodedBits)
	copy(coded, burst[tailLen:tailLen+schHalfLen])
	copy(coded[schHalfLen:], burst[tailLen+schHalfLen+schTrainingLen:tailLen+2*schHalfLen+schTrainingLen])

	info, err := SCHDecode(coded)
	if err != nil {
		return SCHInfo{}, err
	}
	return ParseSCHInfo(SCHInfoFromBytes(info)), nil
}
