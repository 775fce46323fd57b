/*
The package coding implements the GSM 05.03 channel coding of the signalling channels: parity,
convolutional coding, interleaving and the mapping onto bursts.
*/
package coding

import "github.com/ftl/gsm-ms/bits"

// CRC is a generic cyclic redundancy check of up to 64 bits that works on unpacked bits.
type CRC struct {
	Bits      int
	Poly      uint64 // without the leading x^Bits term
	Init      uint64
	Remainder uint64 // XORed onto the result
}

// Parity codes of 3GPP TS 45.003
var (
	// GSMFire is the FIRE code x^40 + x^26 + x^23 + x^17 + x^3 + 1 of the xCCH.
	GSMFire = CRC{Bits: 40, Poly: 0x0004820009, Init: 0, Remainder: 0xffffffffff}
	// RACHParity is x^6 + x^5 + x^3 + x^2 + x + 1.
	RACHParity = CRC{Bits: 6, Poly: 0x2f, Init: 0, Remainder: 0x3f}
	// SCHParity is x^10 + x^8 + x^6 + x^5 + x^4 + x^2 + 1.
	SCHParity = CRC{Bits: 10, Poly: 0x175, Init: 0, Remainder: 0x3ff}
)

func (c CRC) mask() uint64 {
	if c.Bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(c.Bits)) - 1
}

// Compute returns the parity of the given data bits.
func (c CRC) Compute(data []bits.Ubit) uint64 {
	crc := c.Init
	n := uint(c.Bits - 1)
	for _, b := range data {
		crc ^= uint64(b&1) << n
		if crc&(uint64(1)<<n) != 0 {
			crc = (crc << 1) ^ c.Poly
		} else {
			crc <<= 1
		}
		crc &= c.mask()
	}
	return crc ^ c.Remainder
}

// Set computes the parity of data and writes it MSB first into crc.
func (c CRC) Set(data []bits.Ubit, crc []bits.Ubit) {
	value := c.Compute(data)
	for i := 0; i < c.Bits; i++ {
		crc[i] = bits.Ubit((value >> uint(c.Bits-i-1)) & 1)
	}
}

// Check compares the parity bits in crc with the parity of data. It returns 0 if they match.
func (c CRC) Check(data []bits.Ubit, crc []bits.Ubit) int {
	value := c.Compute(data)
	result := 0
	for i := 0; i < c.Bits; i++ {
		result |= int(crc[i]&1) ^ int((value>>uint(c.Bits-i-1))&1)
	}
	return result
}
