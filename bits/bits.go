/*
The package bits implements the bit representations used throughout the GSM stack and the conversions
between them:

	unpacked bits (Ubit): one bit per byte, value 0 or 1
	packed bits:          eight bits per byte, MSB first unless LSB mode is selected
	soft bits (Sbit):     signed confidence values, -127 = certain 1, +127 = certain 0, 0 = erasure

It also provides BitVec, a cursor based bit writer/reader with CSN.1 L/H semantics.
*/
package bits

import (
	"errors"
	"fmt"
)

// Ubit is an unpacked bit, one bit per byte
type Ubit uint8

// Sbit is a soft bit
type Sbit int8

// Soft bit confidence limits
const (
	SbitOne  Sbit = -127
	SbitZero Sbit = 127
)

// ErrShortBuffer is returned when an input or output buffer cannot hold the requested number of bits.
var ErrShortBuffer = errors.New("buffer too short")

// PackedLen returns the number of bytes that are needed to store the given number of packed bits.
func PackedLen(numBits int) int {
	return (numBits + 7) / 8
}

// UbitToPbit packs numBits unpacked bits into out, MSB first. It returns the number of bytes written.
func UbitToPbit(out []byte, in []Ubit, numBits int) (int, error) {
	if numBits < 0 || len(in) < numBits {
		return 0, fmt.Errorf("%w: %d unpacked bits for %d bits", ErrShortBuffer, len(in), numBits)
	}
	if len(out) < PackedLen(numBits) {
		return 0, fmt.Errorf("%w: %d bytes for %d bits", ErrShortBuffer, len(out), numBits)
	}

	var curbyte byte
	n := 0
	for i := 0; i < numBits; i++ {
		curbyte |= byte(in[i]&1) << (7 - uint(i%8))
		if i%8 == 7 {
			out[n] = curbyte
			n++
			curbyte = 0
		}
	}
	if numBits%8 != 0 {
		out[n] = curbyte
		n++
	}
	return n, nil
}

// PbitToUbit unpacks numBits packed bits (MSB first) from in. It returns the number of bits written.
func PbitToUbit(out []Ubit, in []byte, numBits int) (int, error) {
	if numBits < 0 || len(out) < numBits {
		return 0, fmt.Errorf("%w: %d unpacked bits for %d bits", ErrShortBuffer, len(out), numBits)
	}
	if len(in) < PackedLen(numBits) {
		return 0, fmt.Errorf("%w: %d bytes for %d bits", ErrShortBuffer, len(in), numBits)
	}

	for i := 0; i < numBits; i++ {
		out[i] = Ubit((in[i/8] >> (7 - uint(i%8))) & 1)
	}
	return numBits, nil
}

func bitNumber(pos int, lsbMode bool) uint {
	if lsbMode {
		return uint(pos & 7)
	}
	return uint(7 - (pos & 7))
}

// UbitToPbitExt packs unpacked bits starting at inOfs into out starting at bit offset outOfs.
// Bits of out that are not covered are left untouched. In LSB mode the first bit of each byte is
// the least significant one. It returns the number of output bytes touched, counted from the start of out.
func UbitToPbitExt(out []byte, outOfs int, in []Ubit, inOfs int, numBits int, lsbMode bool) int {
	for i := 0; i < numBits; i++ {
		op := outOfs + i
		bn := bitNumber(op, lsbMode)
		if in[inOfs+i] != 0 {
			out[op>>3] |= 1 << bn
		} else {
			out[op>>3] &^= 1 << bn
		}
	}
	return ((outOfs + numBits - 1) >> 3) + 1
}

// PbitToUbitExt unpacks bits starting at bit offset inOfs into out starting at outOfs.
// It returns the index after the last written unpacked bit.
func PbitToUbitExt(out []Ubit, outOfs int, in []byte, inOfs int, numBits int, lsbMode bool) int {
	for i := 0; i < numBits; i++ {
		ip := inOfs + i
		bn := bitNumber(ip, lsbMode)
		out[outOfs+i] = Ubit((in[ip>>3] >> bn) & 1)
	}
	return outOfs + numBits
}

// UbitToSbit converts hard bits into maximum confidence soft bits.
func UbitToSbit(out []Sbit, in []Ubit) {
	for i, b := range in {
		if b != 0 {
			out[i] = SbitOne
		} else {
			out[i] = SbitZero
		}
	}
}

// SbitToUbit converts soft bits into hard decisions.
func SbitToUbit(out []Ubit, in []Sbit) {
	for i, s := range in {
		if s < 0 {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
}

// UbitsFromString converts a string of '0' and '1' characters into unpacked bits; other characters are skipped.
func UbitsFromString(s string) []Ubit {
	result := make([]Ubit, 0, len(s))
	for _, c := range s {
		switch c {
		case '0':
			result = append(result, 0)
		case '1':
			result = append(result, 1)
		}
	}
	return result
}

// UbitsString dumps unpacked bits as a string of '0' and '1'.
func UbitsString(in []Ubit) string {
	result := make([]byte, len(in))
	for i, b := range in {
		if b != 0 {
			result[i] = '1'
		} else {
			result[i] = '0'
		}
	}
	return string(result)
}
