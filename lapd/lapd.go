/*
The package lapd implements the LAPD core of ITU-T Q.921 as it is used by LAPDm (3GPP TS 44.006):
the per-SAPI data link state machine with acknowledged multiple frame operation, T200/T203
supervision, windowing, retransmission, segmentation and reassembly.

The package does not know about the frame layout on the air interface. Frames are exchanged with
the layer below as decoded Msg values, the framing is done by the lapdm package.
*/
package lapd

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is returned when a received frame violates the protocol. An MDL-ERROR
	// indication with the specific cause is also sent to layer 3.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrUnhandled is returned when a primitive is not allowed in the current state.
	ErrUnhandled = errors.New("primitive unhandled in this state")
	// ErrBusy is returned when a release is requested while a release is already in progress.
	ErrBusy = errors.New("release already in progress")
	// ErrEmptyMessage is returned when a DL-DATA request carries no layer 3 message.
	ErrEmptyMessage = errors.New("empty message")
)

// State of a data link according to Figure B.2/Q.921.
type State int

// All states used by LAPDm. The TEI related states of LAPD are not used.
const (
	Null State = iota
	Idle
	SABMSent
	DISCSent
	MFEst
	TimerRecov
)

var stateNames = map[State]string{
	Null:       "NULL",
	Idle:       "IDLE",
	SABMSent:   "SABM_SENT",
	DISCSent:   "DISC_SENT",
	MFEst:      "MF_EST",
	TimerRecov: "TIMER_RECOV",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return name
}

// Format of a frame.
type Format uint8

// All frame formats
const (
	FormatUnknown Format = iota
	FormatI
	FormatS
	FormatU
)

func (f Format) String() string {
	switch f {
	case FormatI:
		return "I"
	case FormatS:
		return "S"
	case FormatU:
		return "U"
	default:
		return "unknown"
	}
}

// Codes of the unnumbered frames
const (
	USABM  uint8 = 0x07
	USABME uint8 = 0x0f
	UDM    uint8 = 0x03
	UUI    uint8 = 0x00
	UDISC  uint8 = 0x08
	UUA    uint8 = 0x0c
	UFRMR  uint8 = 0x11
)

// Codes of the supervisory frames
const (
	SRR  uint8 = 0x00
	SRNR uint8 = 0x01
	SREJ uint8 = 0x02
)

// Values of the C/R bit, depending on the direction.
const (
	CRUser2NetCmd  uint8 = 0
	CRUser2NetResp uint8 = 1
	CRNet2UserCmd  uint8 = 1
	CRNet2UserResp uint8 = 0
)

// Mode selects the side of the link, which defines the meaning of the C/R bit.
type Mode int

// Link sides
const (
	ModeUser Mode = iota
	ModeNetwork
)

func (m Mode) String() string {
	if m == ModeNetwork {
		return "network"
	}
	return "user"
}

// Msg is the decoded context of a frame that is exchanged with the layer below.
type Msg struct {
	Format  Format
	LPD     uint8
	SAPI    uint8
	TEI     uint8
	CR      uint8
	PF      bool
	NS      uint8
	NR      uint8
	SU      uint8 // S or U code
	Length  int
	More    bool
	N201    int
	Payload []byte
}

func (m Msg) String() string {
	switch m.Format {
	case FormatI:
		return fmt.Sprintf("I sapi=%d cr=%d p=%t ns=%d nr=%d len=%d more=%t", m.SAPI, m.CR, m.PF, m.NS, m.NR, m.Length, m.More)
	case FormatS:
		return fmt.Sprintf("%s sapi=%d cr=%d pf=%t nr=%d", sName(m.SU), m.SAPI, m.CR, m.PF, m.NR)
	case FormatU:
		return fmt.Sprintf("%s sapi=%d cr=%d pf=%t len=%d", uName(m.SU), m.SAPI, m.CR, m.PF, m.Length)
	default:
		return fmt.Sprintf("unknown sapi=%d", m.SAPI)
	}
}

func sName(code uint8) string {
	switch code {
	case SRR:
		return "RR"
	case SRNR:
		return "RNR"
	case SREJ:
		return "REJ"
	default:
		return fmt.Sprintf("S(%d)", code)
	}
}

func uName(code uint8) string {
	switch code {
	case USABM:
		return "SABM"
	case USABME:
		return "SABME"
	case UDM:
		return "DM"
	case UUI:
		return "UI"
	case UDISC:
		return "DISC"
	case UUA:
		return "UA"
	case UFRMR:
		return "FRMR"
	default:
		return fmt.Sprintf("U(%d)", code)
	}
}

// Prim is a primitive of the data link service access point.
type Prim int

// DL and MDL primitives
const (
	DLUnitData Prim = iota
	DLData
	DLEstablish
	DLRelease
	DLSuspend
	DLResume
	DLReconnect
	MDLError
)

var primNames = map[Prim]string{
	DLUnitData:  "DL-UNIT-DATA",
	DLData:      "DL-DATA",
	DLEstablish: "DL-ESTABLISH",
	DLRelease:   "DL-RELEASE",
	DLSuspend:   "DL-SUSPEND",
	DLResume:    "DL-RESUME",
	DLReconnect: "DL-RECONNECT",
	MDLError:    "MDL-ERROR",
}

func (p Prim) String() string {
	name, ok := primNames[p]
	if !ok {
		return fmt.Sprintf("prim(%d)", int(p))
	}
	return name
}

// Op is the operation of a primitive.
type Op int

// Primitive operations
const (
	Request Op = iota
	Indication
	Confirm
)

func (o Op) String() string {
	switch o {
	case Request:
		return "req"
	case Indication:
		return "ind"
	case Confirm:
		return "conf"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ReleaseMode of a DL-RELEASE request.
type ReleaseMode int

// Release modes
const (
	ReleaseNormal ReleaseMode = iota
	ReleaseLocal
)

// MDLCause is the cause of an MDL-ERROR indication (3GPP TS 48.058 9.3.22).
type MDLCause uint8

// MDL error causes
const (
	CauseT200Expired    MDLCause = 0x01
	CauseReestReq       MDLCause = 0x02
	CauseUnsolUAResp    MDLCause = 0x03
	CauseUnsolDMResp    MDLCause = 0x04
	CauseUnsolDMRespMF  MDLCause = 0x05
	CauseUnsolSprvResp  MDLCause = 0x06
	CauseSeqErr         MDLCause = 0x07
	CauseUFrmIncParam   MDLCause = 0x08
	CauseSFrmIncParam   MDLCause = 0x09
	CauseIFrmIncMBits   MDLCause = 0x0a
	CauseIFrmIncLen     MDLCause = 0x0b
	CauseFrmUnimpl      MDLCause = 0x0c
	CauseSABMMF         MDLCause = 0x0d
	CauseSABMInfoNotAll MDLCause = 0x0e
	CauseFRMR           MDLCause = 0x0f
)

var causeNames = map[MDLCause]string{
	CauseT200Expired:    "T200 expired (N200+1 times)",
	CauseReestReq:       "re-establishment request",
	CauseUnsolUAResp:    "unsolicited UA response",
	CauseUnsolDMResp:    "unsolicited DM response",
	CauseUnsolDMRespMF:  "unsolicited DM response, multiple frame established state",
	CauseUnsolSprvResp:  "unsolicited supervisory response",
	CauseSeqErr:         "sequence error",
	CauseUFrmIncParam:   "U frame with incorrect parameters",
	CauseSFrmIncParam:   "S frame with incorrect parameters",
	CauseIFrmIncMBits:   "I frame with incorrect use of M bit",
	CauseIFrmIncLen:     "I frame with incorrect length",
	CauseFrmUnimpl:      "frame not implemented",
	CauseSABMMF:         "SABM command, multiple frame established state",
	CauseSABMInfoNotAll: "SABM frame with information not allowed in this state",
	CauseFRMR:           "FRMR received",
}

func (c MDLCause) String() string {
	name, ok := causeNames[c]
	if !ok {
		return fmt.Sprintf("cause 0x%02x", uint8(c))
	}
	return name
}

// DLPrim is a primitive that is delivered to layer 3.
type DLPrim struct {
	Prim    Prim
	Op      Op
	Payload []byte
	Cause   MDLCause // only for MDL-ERROR
}

func (p DLPrim) String() string {
	if p.Prim == MDLError {
		return fmt.Sprintf("%s.%s %s", p.Prim, p.Op, p.Cause)
	}
	return fmt.Sprintf("%s.%s len=%d", p.Prim, p.Op, len(p.Payload))
}

// PHSender sends a frame to the layer below.
type PHSender interface {
	SendPH(msg Msg) error
}

// PHSenderFunc wraps a function into a PHSender.
type PHSenderFunc func(msg Msg) error

// SendPH calls f.
func (f PHSenderFunc) SendPH(msg Msg) error {
	return f(msg)
}

// Upper receives the primitives that a data link delivers to layer 3.
type Upper interface {
	ReceiveDL(prim DLPrim) error
}

// UpperFunc wraps a function into an Upper.
type UpperFunc func(prim DLPrim) error

// ReceiveDL calls f.
func (f UpperFunc) ReceiveDL(prim DLPrim) error {
	return f(prim)
}
