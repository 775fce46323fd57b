package lapdm

import (
	"fmt"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/lapd"
)

// MsgCtx is the context of a frame: the channel it was received on or is sent to, and the
// values the network indicated in the layer 1 header of the SACCH.
type MsgCtx struct {
	ChanNr     gsm.ChanNr
	LinkID     gsm.LinkID
	Format     Format
	TAInd      uint8
	TxPowerInd uint8
}

func (c MsgCtx) String() string {
	return fmt.Sprintf("%s %s fmt=%s", c.ChanNr, c.LinkID, c.Format)
}

// PHType is the type of a primitive that is sent to layer 1.
type PHType int

// PH-SAP request primitives
const (
	PHData PHType = iota
	PHEmptyFrame
	PHRach
)

func (t PHType) String() string {
	switch t {
	case PHData:
		return "PH-DATA"
	case PHEmptyFrame:
		return "PH-EMPTY-FRAME"
	case PHRach:
		return "PH-RACH"
	default:
		return fmt.Sprintf("ph(%d)", int(t))
	}
}

// PHPrim is a request to layer 1.
type PHPrim struct {
	Type   PHType
	ChanNr gsm.ChanNr
	LinkID gsm.LinkID
	// Data is the padded MAC block of a PH-DATA request.
	Data []byte

	// random access parameters of a PH-RACH request
	RA       uint8
	Offset   uint16
	Combined bool
	TA       int
	TxPower  uint8
}

// Lower sends primitives to layer 1.
type Lower interface {
	SendPH(prim PHPrim) error
}

// LowerFunc wraps a function into a Lower.
type LowerFunc func(prim PHPrim) error

// SendPH calls f.
func (f LowerFunc) SendPH(prim PHPrim) error {
	return f(prim)
}

// RachRequest describes a channel request (RSL CHANNEL REQUIRED from layer 3).
type RachRequest struct {
	RA uint8
	// Offset is the number of slots to wait before the access burst is sent, 0 .. 0x7fff.
	Offset      uint16
	Combined    bool
	AccessDelay uint8
	TxPower     uint8
}

// RequestReference identifies a random access in the IMMEDIATE ASSIGNMENT (3GPP TS 44.018 10.5.2.30).
type RequestReference struct {
	RA uint8
	T1 uint8 // T1' = T1 mod 32
	T2 uint8
	T3 uint8
}

// NewRequestReference returns the request reference of a random access in the given frame.
func NewRequestReference(ra uint8, fn uint32) RequestReference {
	t := gsm.TimeFromFN(fn)
	return RequestReference{
		RA: ra,
		T1: uint8(t.T1 % 32),
		T2: t.T2,
		T3: t.T3,
	}
}

// ParseRequestReference decodes the three octets of a request reference.
func ParseRequestReference(b []byte) (RequestReference, error) {
	if len(b) < 3 {
		return RequestReference{}, fmt.Errorf("request reference too short: %d", len(b))
	}
	return RequestReference{
		RA: b[0],
		T1: b[1] >> 3,
		T3: (b[1]&0x07)<<3 | b[2]>>5,
		T2: b[2] & 0x1f,
	}, nil
}

// Bytes encodes the request reference into three octets.
func (r RequestReference) Bytes() []byte {
	return []byte{
		r.RA,
		(r.T1&0x1f)<<3 | (r.T3>>3)&0x07,
		(r.T3&0x07)<<5 | r.T2&0x1f,
	}
}

// Matches reports whether the reference belongs to the given random access.
func (r RequestReference) Matches(ra uint8, fn uint32) bool {
	return r == NewRequestReference(ra, fn)
}

func (r RequestReference) String() string {
	return fmt.Sprintf("ra=0x%02x T1'=%d T2=%d T3=%d", r.RA, r.T1, r.T2, r.T3)
}

// Kind of a primitive that is delivered to layer 3.
type Kind int

// RSLms message groups
const (
	// KindRLL is a DL or MDL primitive of a data link.
	KindRLL Kind = iota
	// KindChanRqd reports a received random access (network side).
	KindChanRqd
	// KindChanConf confirms that the requested random access was sent (MS side).
	KindChanConf
)

// Primitive is delivered to layer 3.
type Primitive struct {
	Kind    Kind
	Prim    lapd.Prim
	Op      lapd.Op
	Ctx     MsgCtx
	Payload []byte
	Cause   lapd.MDLCause

	RequestReference RequestReference
	AccessDelay      uint8
}

func (p Primitive) String() string {
	switch p.Kind {
	case KindChanRqd:
		return fmt.Sprintf("CHAN-RQD %s delay=%d", p.RequestReference, p.AccessDelay)
	case KindChanConf:
		return fmt.Sprintf("CHAN-CONF %s", p.RequestReference)
	}
	if p.Prim == lapd.MDLError {
		return fmt.Sprintf("%s.%s %s (%s)", p.Prim, p.Op, p.Cause, p.Ctx)
	}
	return fmt.Sprintf("%s.%s len=%d (%s)", p.Prim, p.Op, len(p.Payload), p.Ctx)
}

// Upper receives the primitives that are delivered to layer 3.
type Upper interface {
	ReceiveRSL(prim Primitive) error
}

// UpperFunc wraps a function into an Upper.
type UpperFunc func(prim Primitive) error

// ReceiveRSL calls f.
func (f UpperFunc) ReceiveRSL(prim Primitive) error {
	return f(prim)
}
