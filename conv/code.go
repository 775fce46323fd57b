/*
The package conv implements a generic convolutional encoder and a Viterbi decoder working on
state transition tables. The tables are generated from generator polynomials, both for
non-recursive and for recursive systematic codes.
*/
package conv

import (
	"errors"
	"fmt"
	"math/bits"
)

// Term defines how a code block is terminated
type Term int

// All termination types
const (
	// Flush appends K-1 tail bits that drive the encoder back into state 0.
	Flush Term = iota
	// TailBiting starts the encoder in the state it ends in.
	TailBiting
	// Truncation simply stops encoding after the last input bit.
	Truncation
)

func (t Term) String() string {
	switch t {
	case Flush:
		return "flush"
	case TailBiting:
		return "tail-biting"
	case Truncation:
		return "truncation"
	default:
		return "unknown"
	}
}

// Generator polynomials according to 3GPP TS 05.03 Annex B
const (
	G0 = 1<<0 | 1<<3 | 1<<4
	G1 = 1<<0 | 1<<1 | 1<<3 | 1<<4
	G2 = 1<<0 | 1<<2 | 1<<4
	G3 = 1<<0 | 1<<1 | 1<<2 | 1<<3 | 1<<4
	G4 = 1<<0 | 1<<2 | 1<<3 | 1<<5 | 1<<6
	G5 = 1<<0 | 1<<1 | 1<<4 | 1<<6
	G6 = 1<<0 | 1<<1 | 1<<2 | 1<<3 | 1<<4 | 1<<6
	G7 = 1<<0 | 1<<1 | 1<<2 | 1<<3 | 1<<6
)

// Poly describes one output of a code as the quotient of two generator polynomials.
// A divider of 1 means a plain feed-forward output.
type Poly struct {
	Numerator uint32
	Divider   uint32
}

// Code describes a convolutional code. A Code is immutable and can be shared.
type Code struct {
	Name string
	N    int // number of output bits per input bit
	K    int // constraint length
	Len  int // number of input bits in one block
	Term Term

	NextOutput [][2]uint8
	NextState  [][2]uint8

	// only set for recursive codes
	NextTermOutput []uint8
	NextTermState  []uint8

	// ascending positions of the output bits that are not transmitted
	Puncture []int
}

// ErrInvalidCode is returned when a code description is not consistent.
var ErrInvalidCode = errors.New("invalid convolutional code")

// NewCode generates the transition tables of the code with the given polynomials.
func NewCode(name string, length int, term Term, polys []Poly, puncture []int) (*Code, error) {
	if len(polys) == 0 || len(polys) > 8 {
		return nil, fmt.Errorf("%w %s: %d polynomials", ErrInvalidCode, name, len(polys))
	}

	normalized := make([]Poly, len(polys))
	k := 1
	for i, p := range polys {
		if p.Numerator == 0 || p.Divider == 0 {
			return nil, fmt.Errorf("%w %s: zero polynomial", ErrInvalidCode, name)
		}
		if p.Numerator == p.Divider {
			normalized[i] = Poly{1, 1}
		} else {
			normalized[i] = p
		}
		degree := bits.Len32(max(p.Numerator, p.Divider)) - 1
		k = max(k, degree)
	}
	k++

	var divider uint32 = 1
	for _, p := range normalized {
		if p.Divider == 1 {
			continue
		}
		if divider != 1 && divider != p.Divider {
			return nil, fmt.Errorf("%w %s: multiple different dividers", ErrInvalidCode, name)
		}
		divider = p.Divider
	}
	recursive := divider != 1
	if recursive {
		for _, p := range normalized {
			if p.Divider == 1 && p.Numerator != 1 {
				return nil, fmt.Errorf("%w %s: feed-forward output in a recursive code", ErrInvalidCode, name)
			}
		}
	}

	g := &generator{polys: normalized, divider: divider, k: k, n: len(polys), mask: (1 << (k - 1)) - 1}
	numStates := 1 << (k - 1)
	result := &Code{
		Name:       name,
		N:          len(polys),
		K:          k,
		Len:        length,
		Term:       term,
		NextOutput: make([][2]uint8, numStates),
		NextState:  make([][2]uint8, numStates),
	}
	if len(puncture) > 0 {
		result.Puncture = append([]int{}, puncture...)
	}
	for s := 0; s < numStates; s++ {
		for b := 0; b < 2; b++ {
			result.NextState[s][b] = uint8(g.nextState(uint32(s), uint32(b)))
			result.NextOutput[s][b] = g.nextOutput(uint32(s), uint32(b))
		}
	}
	if recursive {
		result.NextTermOutput = make([]uint8, numStates)
		result.NextTermState = make([]uint8, numStates)
		for s := 0; s < numStates; s++ {
			result.NextTermState[s] = uint8(g.nextTermState(uint32(s)))
			result.NextTermOutput[s] = g.nextTermOutput(uint32(s))
		}
	}

	return result, result.Validate()
}

// MustNewCode is like NewCode but panics if the code is invalid. It is meant for package level code tables.
func MustNewCode(name string, length int, term Term, polys []Poly, puncture []int) *Code {
	result, err := NewCode(name, length, term, polys, puncture)
	if err != nil {
		panic(err)
	}
	return result
}

// Validate checks the shape of the tables and the order of the puncturing positions.
func (c *Code) Validate() error {
	if c.N < 1 || c.N > 8 {
		return fmt.Errorf("%w %s: N=%d", ErrInvalidCode, c.Name, c.N)
	}
	if c.K < 2 || c.K > 9 {
		return fmt.Errorf("%w %s: K=%d", ErrInvalidCode, c.Name, c.K)
	}
	if c.Len < 0 {
		return fmt.Errorf("%w %s: len=%d", ErrInvalidCode, c.Name, c.Len)
	}
	numStates := c.NumStates()
	if len(c.NextOutput) != numStates || len(c.NextState) != numStates {
		return fmt.Errorf("%w %s: tables need %d rows", ErrInvalidCode, c.Name, numStates)
	}
	if (c.NextTermOutput == nil) != (c.NextTermState == nil) {
		return fmt.Errorf("%w %s: incomplete termination tables", ErrInvalidCode, c.Name)
	}
	if c.NextTermOutput != nil && (len(c.NextTermOutput) != numStates || len(c.NextTermState) != numStates) {
		return fmt.Errorf("%w %s: termination tables need %d rows", ErrInvalidCode, c.Name, numStates)
	}
	for s := 0; s < numStates; s++ {
		for b := 0; b < 2; b++ {
			if int(c.NextState[s][b]) >= numStates {
				return fmt.Errorf("%w %s: next state %d out of range", ErrInvalidCode, c.Name, c.NextState[s][b])
			}
		}
	}
	for i := 1; i < len(c.Puncture); i++ {
		if c.Puncture[i] <= c.Puncture[i-1] {
			return fmt.Errorf("%w %s: puncturing positions not ascending at %d", ErrInvalidCode, c.Name, i)
		}
	}
	return nil
}

// NumStates is the number of encoder states, 2^(K-1).
func (c *Code) NumStates() int {
	return 1 << (c.K - 1)
}

// Recursive reports whether the code has termination tables.
func (c *Code) Recursive() bool {
	return c.NextTermOutput != nil
}

// InputLen returns the number of input bits, length 0 selects the block length of the code.
func (c *Code) InputLen(length int) int {
	if length == 0 {
		return c.Len
	}
	return length
}

// OutputLen returns the number of transmitted bits for the given number of input bits, length 0
// selects the block length of the code.
func (c *Code) OutputLen(length int) int {
	length = c.InputLen(length)
	if c.Term == Flush {
		length += c.K - 1
	}
	return c.N*length - len(c.Puncture)
}

func (c *Code) String() string {
	return fmt.Sprintf("%s (N=%d, K=%d, len=%d, %s)", c.Name, c.N, c.K, c.Len, c.Term)
}

type generator struct {
	polys   []Poly
	divider uint32
	k       int
	n       int
	mask    uint32
}

func parity(x uint32) uint32 {
	return uint32(bits.OnesCount32(x) & 1)
}

func (g *generator) recursive() bool {
	return g.divider != 1
}

func (g *generator) nextState(state, bit uint32) uint32 {
	nb := parity(((state << 1) | bit) & g.divider)
	return ((state << 1) | nb) & g.mask
}

func (g *generator) nextTermState(state uint32) uint32 {
	return (state << 1) & g.mask
}

func (g *generator) pack(out []uint32) uint8 {
	var result uint8
	for i, o := range out {
		result |= uint8(o << uint(g.n-i-1))
	}
	return result
}

func (g *generator) nextOutput(state, bit uint32) uint8 {
	ns := g.nextState(state, bit)
	src := (ns & 1) | (state << 1)
	out := make([]uint32, g.n)
	for i, p := range g.polys {
		if g.recursive() && p.Divider == 1 {
			out[i] = bit // systematic
		} else {
			out[i] = parity(src & p.Numerator)
		}
	}
	return g.pack(out)
}

func (g *generator) nextTermOutput(state uint32) uint8 {
	ns := g.nextTermState(state)
	src := (ns & 1) | (state << 1)
	out := make([]uint32, g.n)
	for i, p := range g.polys {
		if g.recursive() && p.Divider == 1 {
			out[i] = parity(src & g.divider)
		} else {
			out[i] = parity(src & p.Numerator)
		}
	}
	return g.pack(out)
}
