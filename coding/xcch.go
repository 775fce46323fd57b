package coding

import (
	"errors"
	"fmt"

	"github.com/ftl/gsm-ms/bits"
	"github.com/ftl/gsm-ms/conv"
	"github.com/ftl/gsm-ms/gsm"
)

// xCCH block dimensions
const (
	XCCHDataBits  = 184
	XCCHParityLen = 40
	XCCHCodedBits = 456
	XCCHBurstBits = 4 * BurstPayloadLen
)

var (
	// ErrParity is returned when the parity of a decoded block does not match.
	ErrParity = errors.New("parity mismatch")
	// ErrBlockLen is returned when the buffers do not match the block dimensions.
	ErrBlockLen = errors.New("invalid block length")
)

// XCCHParityCheck checks the FIRE code of 184 data bits followed by 40 parity bits.
// It returns 0 if the parity is correct.
func XCCHParityCheck(data []bits.Ubit) int {
	return GSMFire.Check(data[:XCCHDataBits], data[XCCHDataBits:XCCHDataBits+XCCHParityLen])
}

func xcchInterleaveIndex(k int) int {
	b := k % 4
	j := 2*((49*k)%57) + ((k % 8) / 4)
	return b*InterleavedLen + j
}

// XCCHDeinterleave reorders the 456 interleaved soft bits of four bursts into coded bits.
func XCCHDeinterleave(cB []bits.Sbit, iB []bits.Sbit) {
	for k := 0; k < XCCHCodedBits; k++ {
		cB[k] = iB[xcchInterleaveIndex(k)]
	}
}

// XCCHInterleave distributes 456 coded bits over the four bursts of a block.
func XCCHInterleave(iB []bits.Ubit, cB []bits.Ubit) {
	for k := 0; k < XCCHCodedBits; k++ {
		iB[xcchInterleaveIndex(k)] = cB[k]
	}
}

// XCCHDecodeCoded decodes 456 deinterleaved soft bits into a 23 byte L2 block. It returns the
// number of corrected bit errors.
func XCCHDecodeCoded(l2 []byte, cB []bits.Sbit) (int, error) {
	if len(l2) < gsm.MacBlockLen {
		return 0, fmt.Errorf("%w: L2 buffer of %d bytes", ErrBlockLen, len(l2))
	}
	decoded := make([]bits.Ubit, conv.GSMXCCH.Len)
	numErrors, err := conv.Decode(conv.GSMXCCH, cB, decoded)
	if err != nil {
		return 0, err
	}
	if XCCHParityCheck(decoded) != 0 {
		return numErrors, ErrParity
	}
	bits.UbitToPbitExt(l2, 0, decoded, 0, XCCHDataBits, true)
	return numErrors, nil
}

// XCCHDecode decodes the 4*116 payload soft bits of four normal bursts into a 23 byte L2 block.
// The stealing flags are ignored. It returns the number of corrected bit errors and the total
// number of coded bits.
func XCCHDecode(l2 []byte, bursts []bits.Sbit) (numErrors int, numBits int, err error) {
	if len(bursts) < XCCHBurstBits {
		return 0, 0, fmt.Errorf("%w: %d soft bits", ErrBlockLen, len(bursts))
	}

	iB := make([]bits.Sbit, 4*InterleavedLen)
	for i := 0; i < 4; i++ {
		burst := bursts[i*BurstPayloadLen:]
		copy(iB[i*InterleavedLen:], burst[:halfLen])
		copy(iB[i*InterleavedLen+halfLen:], burst[halfLen+2:BurstPayloadLen])
	}

	cB := make([]bits.Sbit, XCCHCodedBits)
	XCCHDeinterleave(cB, iB)

	numErrors, err = XCCHDecodeCoded(l2, cB)
	return numErrors, XCCHCodedBits, err
}

// XCCHEncode encodes a 23 byte L2 block into the 4*116 payload bits of four normal bursts.
// Both stealing flags are set.
func XCCHEncode(bursts []bits.Ubit, l2 []byte) error {
	if len(l2) != gsm.MacBlockLen {
		return fmt.Errorf("%w: L2 block of %d bytes", ErrBlockLen, len(l2))
	}
	if len(bursts) < XCCHBurstBits {
		return fmt.Errorf("%w: %d bits for the bursts", ErrBlockLen, len(bursts))
	}

	data := make([]bits.Ubit, conv.GSMXCCH.Len)
	bits.PbitToUbitExt(data, 0, l2, 0, XCCHDataBits, true)
	GSMFire.Set(data[:XCCHDataBits], data[XCCHDataBits:])

	cB := make([]bits.Ubit, XCCHCodedBits)
	_, err := conv.Encode(conv.GSMXCCH, data, cB)
	if err != nil {
		return err
	}

	iB := make([]bits.Ubit, 4*InterleavedLen)
	XCCHInterleave(iB, cB)

	for i := 0; i < 4; i++ {
		burst := bursts[i*BurstPayloadLen:]
		copy(burst[:halfLen], iB[i*InterleavedLen:])
		burst[halfLen] = 1
		burst[halfLen+1] = 1
		copy(burst[halfLen+2:BurstPayloadLen], iB[i*InterleavedLen+halfLen:(i+1)*InterleavedLen])
	}
	return nil
}
