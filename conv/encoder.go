package conv

import (
	"errors"
	"fmt"

	"github.com/ftl/gsm-ms/bits"
)

// ErrShortBuffer is returned when the input or output buffers do not cover a whole code block.
var ErrShortBuffer = errors.New("buffer too short")

// Encoder holds the state of an ongoing encoding.
type Encoder struct {
	code  *Code
	state uint8
	iIdx  int // input bit index, used for puncturing
	pIdx  int // index into the puncturing positions
}

// NewEncoder returns an encoder for the given code, starting in state 0.
func NewEncoder(code *Code) *Encoder {
	return &Encoder{code: code}
}

// Reset moves the encoder back to state 0 and the beginning of a block.
func (e *Encoder) Reset() {
	e.state = 0
	e.iIdx = 0
	e.pIdx = 0
}

// LoadState sets the encoder state from the K-1 given bits, oldest bit first.
func (e *Encoder) LoadState(input []bits.Ubit) {
	e.state = 0
	for i := 0; i < e.code.K-1; i++ {
		e.state = (e.state << 1) | uint8(input[i]&1)
	}
}

func (e *Encoder) emit(out uint8, output []bits.Ubit) int {
	o := 0
	for j := 0; j < e.code.N; j++ {
		bitNo := uint(e.code.N - j - 1)
		r := e.iIdx*e.code.N + j
		if e.pIdx < len(e.code.Puncture) && e.code.Puncture[e.pIdx] == r {
			e.pIdx++
			continue
		}
		output[o] = bits.Ubit((out >> bitNo) & 1)
		o++
	}
	return o
}

// EncodeRaw encodes n input bits and returns the number of output bits written.
func (e *Encoder) EncodeRaw(input []bits.Ubit, output []bits.Ubit, n int) int {
	o := 0
	for i := 0; i < n; i++ {
		b := input[i] & 1
		out := e.code.NextOutput[e.state][b]
		e.state = e.code.NextState[e.state][b]
		o += e.emit(out, output[o:])
		e.iIdx++
	}
	return o
}

// Finish writes the K-1 termination bits that drive the encoder back into state 0 and returns
// the number of output bits written.
func (e *Encoder) Finish(output []bits.Ubit) int {
	o := 0
	for i := 0; i < e.code.K-1; i++ {
		var out uint8
		if e.code.Recursive() {
			out = e.code.NextTermOutput[e.state]
			e.state = e.code.NextTermState[e.state]
		} else {
			out = e.code.NextOutput[e.state][0]
			e.state = e.code.NextState[e.state][0]
		}
		o += e.emit(out, output[o:])
		e.iIdx++
	}
	return o
}

// State returns the current encoder state.
func (e *Encoder) State() uint8 {
	return e.state
}

// Encode encodes one complete block of the given code and returns the number of output bits.
func Encode(code *Code, input []bits.Ubit, output []bits.Ubit) (int, error) {
	if len(input) < code.Len {
		return 0, fmt.Errorf("%w: %d input bits for %s", ErrShortBuffer, len(input), code.Name)
	}
	if len(output) < code.OutputLen(0) {
		return 0, fmt.Errorf("%w: %d output bits for %s", ErrShortBuffer, len(output), code.Name)
	}

	encoder := NewEncoder(code)
	if code.Term == TailBiting {
		encoder.LoadState(input[code.Len-code.K+1:])
	}

	n := encoder.EncodeRaw(input, output, code.Len)
	if code.Term == Flush {
		n += encoder.Finish(output[n:])
	}
	return n, nil
}
