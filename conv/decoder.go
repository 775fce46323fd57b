package conv

import (
	"fmt"
	"math"

	"github.com/ftl/gsm-ms/bits"
)

const unreachable = math.MaxUint32

// Decoder is a soft decision Viterbi decoder. The accumulated error of each state is the sum of
// the branch metrics along its survivor path, lower is better. The branch metric of one received
// soft bit is |expected - soft|, with expected = +127 for a 0 and -127 for a 1. Erased or
// punctured bits (soft value 0) cost the same on every branch and are skipped.
type Decoder struct {
	code      *Code
	numStates int
	maxSteps  int

	ae      []uint32
	aeNext  []uint32
	history [][]uint8 // [step][state] = predecessor state

	oIdx int // trellis step
	pIdx int // index into the puncturing positions
}

// NewDecoder allocates a decoder for blocks of the given length (0 = block length of the code).
// A negative start state means that the start state is unknown.
func NewDecoder(code *Code, length int, startState int) *Decoder {
	numStates := code.NumStates()
	maxSteps := code.InputLen(length)
	if code.Term == Flush {
		maxSteps += code.K - 1
	}

	result := &Decoder{
		code:      code,
		numStates: numStates,
		maxSteps:  maxSteps,
		ae:        make([]uint32, numStates),
		aeNext:    make([]uint32, numStates),
		history:   make([][]uint8, maxSteps),
	}
	for i := range result.history {
		result.history[i] = make([]uint8, numStates)
	}
	result.Reset(startState)
	return result
}

// Reset clears all accumulated errors and moves back to the first trellis step.
func (d *Decoder) Reset(startState int) {
	d.oIdx = 0
	d.pIdx = 0
	for s := range d.ae {
		switch {
		case startState < 0:
			d.ae[s] = 0
		case s == startState:
			d.ae[s] = 0
		default:
			d.ae[s] = unreachable
		}
	}
}

// Rewind moves back to the first trellis step, but keeps the accumulated errors.
func (d *Decoder) Rewind() {
	d.oIdx = 0
	d.pIdx = 0
}

// prepare takes the soft bits of one trellis step from the input, inserting erasures at
// punctured positions. It returns the number of soft bits consumed.
func (d *Decoder) prepare(symbols []bits.Sbit, input []bits.Sbit) (int, error) {
	consumed := 0
	for j := 0; j < d.code.N; j++ {
		idx := d.oIdx*d.code.N + j
		if d.pIdx < len(d.code.Puncture) && d.code.Puncture[d.pIdx] == idx {
			symbols[j] = 0
			d.pIdx++
			continue
		}
		if consumed >= len(input) {
			return consumed, fmt.Errorf("%w: soft bits exhausted at step %d", ErrShortBuffer, d.oIdx)
		}
		symbols[j] = input[consumed]
		consumed++
	}
	return consumed, nil
}

func (d *Decoder) branchMetric(out uint8, symbols []bits.Sbit) uint32 {
	var result uint32
	for j, sym := range symbols {
		if sym == 0 {
			continue
		}
		expected := 127
		if (out>>uint(d.code.N-j-1))&1 == 1 {
			expected = -127
		}
		e := int(sym) - expected
		if e < 0 {
			e = -e
		}
		result += uint32(e)
	}
	return result
}

// step runs one add-compare-select step. Termination steps only follow the termination
// transitions (recursive codes) or the 0 transitions.
func (d *Decoder) step(symbols []bits.Sbit, termination bool) {
	for s := range d.aeNext {
		d.aeNext[s] = unreachable
	}
	history := d.history[d.oIdx]

	for s := 0; s < d.numStates; s++ {
		if d.ae[s] == unreachable {
			continue
		}
		for b := 0; b < 2; b++ {
			var out, next uint8
			switch {
			case termination && b == 1:
				continue
			case termination && d.code.Recursive():
				out = d.code.NextTermOutput[s]
				next = d.code.NextTermState[s]
			default:
				out = d.code.NextOutput[s][b]
				next = d.code.NextState[s][b]
			}

			nae := d.ae[s] + d.branchMetric(out, symbols)
			if d.aeNext[next] > nae {
				d.aeNext[next] = nae
				history[next] = uint8(s)
			}
		}
	}

	var minimum uint32 = unreachable
	for _, e := range d.aeNext {
		minimum = min(minimum, e)
	}
	for s, e := range d.aeNext {
		if e == unreachable {
			d.ae[s] = unreachable
		} else {
			d.ae[s] = e - minimum
		}
	}
	d.oIdx++
}

// Scan runs n trellis steps over the given soft bits and returns the number of soft bits consumed.
func (d *Decoder) Scan(input []bits.Sbit, n int) (int, error) {
	symbols := make([]bits.Sbit, d.code.N)
	consumed := 0
	for i := 0; i < n; i++ {
		if d.oIdx >= d.maxSteps {
			return consumed, fmt.Errorf("%w: trellis holds %d steps", ErrShortBuffer, d.maxSteps)
		}
		c, err := d.prepare(symbols, input[consumed:])
		consumed += c
		if err != nil {
			return consumed, err
		}
		d.step(symbols, false)
	}
	return consumed, nil
}

// Finish runs the K-1 termination steps and returns the number of soft bits consumed.
func (d *Decoder) Finish(input []bits.Sbit) (int, error) {
	symbols := make([]bits.Sbit, d.code.N)
	consumed := 0
	for i := 0; i < d.code.K-1; i++ {
		if d.oIdx >= d.maxSteps {
			return consumed, fmt.Errorf("%w: trellis holds %d steps", ErrShortBuffer, d.maxSteps)
		}
		c, err := d.prepare(symbols, input[consumed:])
		consumed += c
		if err != nil {
			return consumed, err
		}
		d.step(symbols, true)
	}
	return consumed, nil
}

// Output traces back the survivor path and writes the decoded bits. If hasFlush is set, the
// last K-1 steps are termination steps that do not produce output. A negative end state selects
// the state with the lowest accumulated error. It returns the number of decoded bits and the
// accumulated error of the chosen path.
func (d *Decoder) Output(output []bits.Ubit, hasFlush bool, endState int) (int, uint32, error) {
	outputSteps := d.oIdx
	if hasFlush {
		outputSteps -= d.code.K - 1
	}
	if outputSteps < 0 {
		return 0, 0, fmt.Errorf("%w: only %d trellis steps", ErrShortBuffer, d.oIdx)
	}
	if len(output) < outputSteps {
		return 0, 0, fmt.Errorf("%w: %d output bits for %d steps", ErrShortBuffer, len(output), outputSteps)
	}

	if endState < 0 {
		endState = 0
		for s := 1; s < d.numStates; s++ {
			if d.ae[s] < d.ae[endState] {
				endState = s
			}
		}
	}
	if endState >= d.numStates {
		return 0, 0, fmt.Errorf("%w: end state %d", ErrInvalidCode, endState)
	}
	metric := d.ae[endState]

	cur := uint8(endState)
	for t := d.oIdx - 1; t >= 0; t-- {
		prev := d.history[t][cur]
		if t < outputSteps {
			if d.code.NextState[prev][0] == cur {
				output[t] = 0
			} else {
				output[t] = 1
			}
		}
		cur = prev
	}
	return outputSteps, metric, nil
}

// Decode decodes one complete block of the given code. It returns the number of received
// bits that disagree with the re-encoded result, i.e. the number of corrected channel bit errors.
func Decode(code *Code, input []bits.Sbit, output []bits.Ubit) (int, error) {
	outputLen := code.OutputLen(0)
	if len(input) < outputLen {
		return 0, fmt.Errorf("%w: %d soft bits for %s", ErrShortBuffer, len(input), code.Name)
	}
	if len(output) < code.Len {
		return 0, fmt.Errorf("%w: %d output bits for %s", ErrShortBuffer, len(output), code.Name)
	}

	var decoder *Decoder
	if code.Term == TailBiting {
		decoder = NewDecoder(code, 0, -1)
		_, err := decoder.Scan(input, code.Len)
		if err != nil {
			return 0, err
		}
		decoder.Rewind()
	} else {
		decoder = NewDecoder(code, 0, 0)
	}

	n, err := decoder.Scan(input, code.Len)
	if err != nil {
		return 0, err
	}
	endState := -1
	if code.Term == Flush {
		_, err = decoder.Finish(input[n:])
		if err != nil {
			return 0, err
		}
		endState = 0
	}
	_, _, err = decoder.Output(output, code.Term == Flush, endState)
	if err != nil {
		return 0, err
	}

	return countErrors(code, input[:outputLen], output)
}

func countErrors(code *Code, input []bits.Sbit, decoded []bits.Ubit) (int, error) {
	reencoded := make([]bits.Ubit, code.OutputLen(0))
	_, err := Encode(code, decoded, reencoded)
	if err != nil {
		return 0, err
	}

	result := 0
	for i, sym := range input {
		if sym == 0 {
			continue
		}
		if (sym < 0) != (reencoded[i] == 1) {
			result++
		}
	}
	return result, nil
}
