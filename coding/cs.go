package coding

import "fmt"

// CodingScheme identifies the GPRS coding scheme of a PDTCH block.
type CodingScheme uint8

// GPRS coding schemes according to 3GPP TS 45.003 5.1.
const (
	CSNone CodingScheme = iota
	CS1
	CS2
	CS3
	CS4
)

var csBlockLen = map[CodingScheme]int{
	CS1: 23,
	CS2: 34,
	CS3: 40,
	CS4: 54,
}

// CodingSchemeForLen returns the coding scheme of a decoded downlink block with the given length in bytes.
func CodingSchemeForLen(length int) CodingScheme {
	for cs, l := range csBlockLen {
		if l == length {
			return cs
		}
	}
	return CSNone
}

// BlockLen returns the length of a decoded block in bytes, or 0 for CSNone.
func (c CodingScheme) BlockLen() int {
	return csBlockLen[c]
}

func (c CodingScheme) String() string {
	if c == CSNone {
		return "none"
	}
	return fmt.Sprintf("CS-%d", uint8(c))
}
