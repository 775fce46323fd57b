package coding

import (
	"fmt"

	"github.com/ftl/gsm-ms/bits"
	"github.com/ftl/gsm-ms/conv"
)

// Access burst layout according to 3GPP TS 45.002 5.2.7
const (
	RACHCodedBits     = 36
	accessTailLen     = 8
	accessSyncSeqLen  = 41
	accessPayloadOfs  = accessTailLen + accessSyncSeqLen
	rachDataBits      = 8
	rachParityBitsLen = 6
)

var (
	accessExtTailBits = [accessTailLen]bits.Ubit{0, 0, 1, 1, 1, 0, 1, 0}
	accessSyncSeq     = bits.UbitsFromString("01001011011111111001100110101010001111000")
)

func applyBSIC(parity []bits.Ubit, bsic uint8) {
	for i := 0; i < rachParityBitsLen; i++ {
		parity[i] ^= bits.Ubit((bsic >> uint(5-i)) & 1)
	}
}

// RACHEncode encodes the 8 bit random access reference into the 36 coded bits of an access burst.
// The parity bits are combined with the BSIC of the target cell.
func RACHEncode(ra uint8, bsic uint8) ([RACHCodedBits]bits.Ubit, error) {
	var result [RACHCodedBits]bits.Ubit

	data := make([]bits.Ubit, conv.GSMRACH.Len)
	_, err := bits.PbitToUbit(data, []byte{ra}, rachDataBits)
	if err != nil {
		return result, err
	}
	RACHParity.Set(data[:rachDataBits], data[rachDataBits:])
	applyBSIC(data[rachDataBits:], bsic)

	_, err = conv.Encode(conv.GSMRACH, data, result[:])
	return result, err
}

// RACHDecode decodes the 36 coded soft bits of an access burst that was sent to the cell
// with the given BSIC.
func RACHDecode(coded []bits.Sbit, bsic uint8) (uint8, error) {
	if len(coded) < RACHCodedBits {
		return 0, fmt.Errorf("%w: %d soft bits", ErrBlockLen, len(coded))
	}
	data := make([]bits.Ubit, conv.GSMRACH.Len)
	_, err := conv.Decode(conv.GSMRACH, coded, data)
	if err != nil {
		return 0, err
	}
	applyBSIC(data[rachDataBits:], bsic)
	if RACHParity.Check(data[:rachDataBits], data[rachDataBits:]) != 0 {
		return 0, ErrParity
	}
	ra := make([]byte, 1)
	_, err = bits.UbitToPbit(ra, data, rachDataBits)
	return ra[0], err
}

// AccessBurst composes a complete access burst carrying the given random access reference:
// 8 extended tail bits, 41 bits synchronisation sequence, 36 coded bits and tail bits.
func AccessBurst(burst []bits.Ubit, ra uint8, bsic uint8) error {
	if len(burst) < BurstLen {
		return fmt.Errorf("burst too short: %d", len(burst))
	}
	coded, err := RACHEncode(ra, bsic)
	if err != nil {
		return err
	}
	for i := range burst[:BurstLen] {
		burst[i] = 0
	}
	copy(burst, accessExtTailBits[:])
	copy(burst[accessTailLen:], accessSyncSeq)
	copy(burst[accessPayloadOfs:], coded[:])
	return nil
}

// AccessBurstPayload extracts the 36 coded soft bits from a received access burst.
func AccessBurstPayload(burst []bits.Sbit) ([]bits.Sbit, error) {
	if len(burst) < accessPayloadOfs+RACHCodedBits {
		return nil, fmt.Errorf("burst too short: %d", len(burst))
	}
	return burst[accessPayloadOfs : accessPayloadOfs+RACHCodedBits], nil
}
