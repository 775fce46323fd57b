package com

import (
	"encoding/binary"
	"errors"
)

// ErrFrameTooLong is returned when a message does not fit into a frame.
var ErrFrameTooLong = errors.New("frame too long")

// Framing splits the byte stream of a device into L1CTL messages and wraps outgoing messages.
type Framing interface {
	// Encode wraps one message into a frame.
	Encode(msg []byte) ([]byte, error)
	// Decode looks for the first complete frame in buf. It returns the contained message and the
	// number of bytes that were consumed. If consumed is 0, more data is needed. A nil message with
	// consumed > 0 means that the consumed bytes are skipped.
	Decode(buf []byte) (msg []byte, consumed int)
}

// LengthPrefixed is the framing used on the layer 1 socket: every message is preceded by its
// length as 16 bit value in network byte order.
type LengthPrefixed struct{}

const maxLengthPrefixed = 0xffff

func (LengthPrefixed) Encode(msg []byte) ([]byte, error) {
	if len(msg) > maxLengthPrefixed {
		return nil, ErrFrameTooLong
	}
	result := make([]byte, 0, len(msg)+2)
	result = binary.BigEndian.AppendUint16(result, uint16(len(msg)))
	return append(result, msg...), nil
}

func (LengthPrefixed) Decode(buf []byte) ([]byte, int) {
	if len(buf) < 2 {
		return nil, 0
	}
	n := int(binary.BigEndian.Uint16(buf))
	if len(buf) < n+2 {
		return nil, 0
	}
	if n == 0 {
		return nil, 2
	}
	return append([]byte{}, buf[2:n+2]...), n + 2
}
