package gsm

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// MacBlockLen is the size of a LAPDm frame / xCCH MAC block in bytes
const MacBlockLen = 23

// ARFCN flags as used in the band_arfcn fields of L1CTL according to [L1CTL] l1ctl_proto.h
const (
	ARFCNPCS    uint16 = 0x8000
	ARFCNUplink uint16 = 0x4000
	ARFCNMask   uint16 = 0x3fff
)

// BandARFCN combines an ARFCN with its band and direction flags
type BandARFCN uint16

// NewBandARFCN returns the band_arfcn value for the given ARFCN
func NewBandARFCN(arfcn uint16, pcs bool, uplink bool) BandARFCN {
	result := arfcn & ARFCNMask
	if pcs {
		result |= ARFCNPCS
	}
	if uplink {
		result |= ARFCNUplink
	}
	return BandARFCN(result)
}

// ARFCN returns the plain ARFCN without the flags
func (a BandARFCN) ARFCN() uint16 {
	return uint16(a) & ARFCNMask
}

// PCS reports whether the ARFCN belongs to the PCS 1900 band
func (a BandARFCN) PCS() bool {
	return uint16(a)&ARFCNPCS != 0
}

// Uplink reports whether this is the uplink frequency of the ARFCN
func (a BandARFCN) Uplink() bool {
	return uint16(a)&ARFCNUplink != 0
}

func (a BandARFCN) String() string {
	var suffix string
	if a.PCS() {
		suffix += "(PCS)"
	}
	if a.Uplink() {
		suffix += "(UL)"
	}
	return fmt.Sprintf("%d%s", a.ARFCN(), suffix)
}

// RxLevToDBm converts an rx level (0..63) into dBm
func RxLevToDBm(rxlev uint8) int {
	return int(rxlev) - 110
}

// DBmToRxLev converts dBm into an rx level, clamped to 0..63
func DBmToRxLev(dbm int) uint8 {
	rxlev := dbm + 110
	switch {
	case rxlev < 0:
		return 0
	case rxlev > 63:
		return 63
	default:
		return uint8(rxlev)
	}
}

var hexSanitizer = regexp.MustCompile(`\s+`)

// HexToBinary converts a hex dump, as written in traces and test vectors, into a slice of bytes
func HexToBinary(s string) ([]byte, error) {
	sanitized := hexSanitizer.ReplaceAllString(s, "")
	return hex.DecodeString(sanitized)
}

// BinaryToHex converts a slice of bytes into its hex representation
func BinaryToHex(pdu []byte) string {
	return strings.ToUpper(hex.EncodeToString(pdu))
}
