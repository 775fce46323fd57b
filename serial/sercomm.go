package serial

import "github.com/ftl/gsm-ms/com"

// Data link connection identifiers of the phone's serial multiplexer
const (
	DLCIDebug   uint8 = 4
	DLCIL1AL23  uint8 = 5
	DLCILoader  uint8 = 9
	DLCIConsole uint8 = 10
	DLCIEcho    uint8 = 128
)

const (
	hdlcFlag   = 0x7e
	hdlcEscape = 0x7d
	hdlcCtrlUI = 0x03
	escapeMask = 1 << 5

	maxSercommMsgLen = 512
)

// Sercomm is the HDLC based framing that the phone firmware uses on its serial line. Each frame
// starts and ends with a flag octet and carries the DLCI and an unnumbered information control octet
// in front of the message. Flag, escape and zero octets are escaped. Frames of other DLCIs are
// skipped.
type Sercomm struct {
	DLCI uint8
}

// NewSercomm returns the framing for L1CTL messages.
func NewSercomm() *Sercomm {
	return &Sercomm{DLCI: DLCIL1AL23}
}

var _ com.Framing = (*Sercomm)(nil)

func (s *Sercomm) Encode(msg []byte) ([]byte, error) {
	if len(msg) > maxSercommMsgLen {
		return nil, com.ErrFrameTooLong
	}
	result := make([]byte, 0, 2*len(msg)+4)
	result = append(result, hdlcFlag)
	result = appendEscaped(result, s.DLCI)
	result = appendEscaped(result, hdlcCtrlUI)
	for _, b := range msg {
		result = appendEscaped(result, b)
	}
	return append(result, hdlcFlag), nil
}

func appendEscaped(bytes []byte, b byte) []byte {
	switch b {
	case hdlcFlag, hdlcEscape, 0x00:
		return append(bytes, hdlcEscape, b^escapeMask)
	default:
		return append(bytes, b)
	}
}

func (s *Sercomm) Decode(buf []byte) ([]byte, int) {
	start := 0
	for start < len(buf) && buf[start] != hdlcFlag {
		start++
	}
	if start > 0 {
		return nil, start
	}
	if len(buf) < 2 {
		return nil, 0
	}
	if buf[1] == hdlcFlag {
		return nil, 1
	}

	// address and control octets are never escaped on the receiving side
	if len(buf) < 3 {
		return nil, 0
	}
	dlci := buf[1]
	msg := make([]byte, 0, len(buf))
	escaped := false
	for i := 3; i < len(buf); i++ {
		b := buf[i]
		switch {
		case escaped:
			msg = append(msg, b^escapeMask)
			escaped = false
		case b == hdlcEscape:
			escaped = true
		case b == hdlcFlag:
			if dlci != s.DLCI {
				return nil, i + 1
			}
			return msg, i + 1
		default:
			msg = append(msg, b)
		}
		if len(msg) > maxSercommMsgLen {
			return nil, i + 1
		}
	}
	return nil, 0
}
