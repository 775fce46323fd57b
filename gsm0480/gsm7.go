package gsm0480

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// GSM7 is the GSM 03.38 default alphabet with its extension table. Encoded text is one septet per
// byte; use Pack7Bit to pack the septets into octets.
var GSM7 encoding.Encoding = gsm7{}

const (
	septetEscape = 0x1b
	septetCR     = 0x0d
	septetSpace  = 0x20
)

var gsm7Default = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', ' ', 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

var gsm7Extension = map[byte]rune{
	0x0a: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2f: '\\',
	0x3c: '[',
	0x3d: '~',
	0x3e: ']',
	0x40: '|',
	0x65: '€',
}

var (
	runeToSeptet          map[rune]byte
	runeToExtendedSeptet  map[rune]byte
	errUnsupportedGSM7    = unsupportedRuneError{}
	ErrInvalidSeptetCount = errors.New("invalid number of septets")
)

func init() {
	runeToSeptet = make(map[rune]byte, len(gsm7Default))
	for septet, r := range gsm7Default {
		if septet == septetEscape {
			continue
		}
		runeToSeptet[r] = byte(septet)
	}
	runeToExtendedSeptet = make(map[rune]byte, len(gsm7Extension))
	for septet, r := range gsm7Extension {
		runeToExtendedSeptet[r] = septet
	}
}

// unsupportedRuneError is recognized by encoding.ReplaceUnsupported.
type unsupportedRuneError struct{}

func (unsupportedRuneError) Error() string {
	return "rune not supported by the GSM 7 bit alphabet"
}

func (unsupportedRuneError) Replacement() byte {
	return '?'
}

type gsm7 struct{}

func (gsm7) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: gsm7Decoder{}}
}

func (gsm7) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: gsm7Encoder{}}
}

func (gsm7) String() string {
	return "GSM 03.38"
}

type gsm7Decoder struct{ transform.NopResetter }

func (gsm7Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		septet := src[nSrc] & 0x7f
		size := 1
		var r rune
		if septet == septetEscape {
			if nSrc+1 >= len(src) {
				if !atEOF {
					err = transform.ErrShortSrc
					break
				}
				// a dangling escape has no character
				nSrc++
				continue
			}
			size = 2
			next := src[nSrc+1] & 0x7f
			extended, ok := gsm7Extension[next]
			if ok {
				r = extended
			} else {
				r = gsm7Default[next]
			}
		} else {
			r = gsm7Default[septet]
		}

		if nDst+utf8.RuneLen(r) > len(dst) {
			err = transform.ErrShortDst
			break
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
		nSrc += size
	}
	return nDst, nSrc, err
}

type gsm7Encoder struct{ transform.NopResetter }

func (gsm7Encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size := rune(src[nSrc]), 1
		if r >= utf8.RuneSelf {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				err = transform.ErrShortSrc
				break
			}
			r, size = utf8.DecodeRune(src[nSrc:])
		}

		var septets []byte
		if septet, ok := runeToSeptet[r]; ok {
			septets = []byte{septet}
		} else if septet, ok := runeToExtendedSeptet[r]; ok {
			septets = []byte{septetEscape, septet}
		} else {
			err = errUnsupportedGSM7
			break
		}

		if nDst+len(septets) > len(dst) {
			err = transform.ErrShortDst
			break
		}
		nDst += copy(dst[nDst:], septets)
		nSrc += size
	}
	return nDst, nSrc, err
}

// OctetLen returns the number of octets that are needed for the given number of septets.
func OctetLen(septets int) int {
	return (septets*7 + 7) / 8
}

// Pack7Bit packs the given septets into octets, least significant bit first.
func Pack7Bit(septets []byte) []byte {
	result := make([]byte, OctetLen(len(septets)))
	for i, septet := range septets {
		bit := i * 7
		octet, shift := bit/8, bit%8
		result[octet] |= (septet & 0x7f) << shift
		if shift > 1 {
			result[octet+1] |= (septet & 0x7f) >> (8 - shift)
		}
	}
	return result
}

// Unpack7Bit extracts the given number of septets from the packed octets.
func Unpack7Bit(octets []byte, septets int) ([]byte, error) {
	if septets < 0 || OctetLen(septets) > len(octets) {
		return nil, ErrInvalidSeptetCount
	}
	result := make([]byte, septets)
	for i := range result {
		bit := i * 7
		octet, shift := bit/8, bit%8
		value := uint16(octets[octet])
		if octet+1 < len(octets) {
			value |= uint16(octets[octet+1]) << 8
		}
		result[i] = byte(value>>shift) & 0x7f
	}
	return result, nil
}

// Encode7BitUSSD encodes the text for a USSD string. If the last octet would carry only one bit,
// the remaining bits are filled with a CR. If the text ends with a CR that fills the last octet,
// another CR is appended, so that the receiver does not strip the original one.
func Encode7BitUSSD(text string) ([]byte, error) {
	septets, err := encoding.ReplaceUnsupported(GSM7.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, err
	}
	result := Pack7Bit(septets)
	n := len(septets)
	switch {
	case n*7%8 == 1:
		result[len(result)-1] |= septetCR << 1
	case n > 0 && n*7%8 == 0 && result[len(result)-1]>>1 == septetCR:
		result = append(result, septetCR)
	}
	return result, nil
}

// Decode7BitUSSD decodes a USSD string. All septets that fit into the octets are decoded. A CR that
// fills the last octet is padding and removed.
func Decode7BitUSSD(octets []byte) (string, error) {
	n := len(octets) * 8 / 7
	septets, err := Unpack7Bit(octets, n)
	if err != nil {
		return "", err
	}
	if n > 0 && septets[n-1] == septetCR && octets[OctetLen(n)-1]>>1 == septetCR {
		septets = septets[:n-1]
	}
	text, err := GSM7.NewDecoder().Bytes(septets)
	if err != nil {
		return "", err
	}
	return string(text), nil
}
