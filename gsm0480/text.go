package gsm0480

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DCSDefault is the data coding scheme for GSM 7 bit text without language indication.
const DCSDefault byte = 0x0f

// Charset is the character set selected by a data coding scheme according to 3GPP TS 23.038 5.
type Charset byte

// All character sets
const (
	CharsetGSM7 Charset = iota
	Charset8Bit
	CharsetUCS2
)

var charsetNames = map[Charset]string{
	CharsetGSM7: "GSM7",
	Charset8Bit: "8BIT",
	CharsetUCS2: "UCS2",
}

func (c Charset) String() string {
	name, ok := charsetNames[c]
	if !ok {
		return fmt.Sprintf("CHARSET(%d)", byte(c))
	}
	return name
}

// TextCodecs contains encoding.Encoding instances for all supported character sets.
// 8 bit data has no defined character set, it is read as ISO8859-1.
var TextCodecs = map[Charset]encoding.Encoding{
	CharsetGSM7: GSM7,
	Charset8Bit: charmap.ISO8859_1,
	CharsetUCS2: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

var fallbackCodec encoding.Encoding = charmap.ISO8859_1 // be lenient and use ISO8859-1 as fallback if anything goes havoc

// CharsetForDCS returns the character set of the given data coding scheme for cell broadcast and
// USSD. Reserved values are treated as GSM 7 bit.
func CharsetForDCS(dcs byte) Charset {
	group := dcs >> 4
	switch {
	case group == 0x1 && dcs&0x0f == 0x01:
		return CharsetUCS2
	case group&0xc == 0x4, group == 0x9:
		switch (dcs >> 2) & 0x03 {
		case 0x01:
			return Charset8Bit
		case 0x02:
			return CharsetUCS2
		default:
			return CharsetGSM7
		}
	case group == 0xf:
		if dcs&0x04 != 0 {
			return Charset8Bit
		}
		return CharsetGSM7
	default:
		return CharsetGSM7
	}
}

// DecodeUSSDString decodes the USSD string with the given data coding scheme.
func DecodeUSSDString(dcs byte, bytes []byte) (string, error) {
	charset := CharsetForDCS(dcs)
	if charset == CharsetGSM7 {
		return Decode7BitUSSD(bytes)
	}

	codec, ok := TextCodecs[charset]
	if !ok { // we have no matching codec, but be lenient and use the fallback
		codec = fallbackCodec
	}
	text, err := codec.NewDecoder().Bytes(bytes)
	return string(text), err
}

// EncodeUSSDString encodes the text as USSD string with the given data coding scheme.
func EncodeUSSDString(dcs byte, text string) ([]byte, error) {
	charset := CharsetForDCS(dcs)
	if charset == CharsetGSM7 {
		return Encode7BitUSSD(text)
	}

	codec, ok := TextCodecs[charset]
	if !ok {
		codec = fallbackCodec
	}
	return encoding.ReplaceUnsupported(codec.NewEncoder()).Bytes([]byte(text))
}
