package bits

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Bit is the value of one bit inside a BitVec. L and H are the CSN.1 values that are
// defined relative to the 0x2b padding pattern.
type Bit int

// All bit values
const (
	Zero Bit = iota
	One
	L
	H
)

func (b Bit) String() string {
	switch b {
	case Zero:
		return "0"
	case One:
		return "1"
	case L:
		return "L"
	case H:
		return "H"
	default:
		return "?"
	}
}

// PaddingPattern is the octet GSM uses to pad partially filled blocks.
const PaddingPattern = 0x2b

var (
	// ErrOutOfRange is returned when a bit position lies beyond the end of the vector.
	ErrOutOfRange = errors.New("bit position out of range")
	// ErrInvalidCount is returned when more than 32 bits are requested for an integer.
	ErrInvalidCount = errors.New("invalid bit count")
)

// BitVec is a bit cursor over a byte buffer. Bit 0 is the MSB of the first byte.
// CurBit never exceeds len(Data)*8.
type BitVec struct {
	Data   []byte
	CurBit int
}

// NewBitVec allocates a zeroed vector of the given length in bytes.
func NewBitVec(length int) *BitVec {
	return &BitVec{Data: make([]byte, length)}
}

// Len is the capacity of the vector in bits.
func (v *BitVec) Len() int {
	return len(v.Data) * 8
}

func maskForBit(bit Bit, bitnum uint) byte {
	switch bit {
	case Zero:
		return 0
	case One:
		return 1 << bitnum
	case L:
		return (PaddingPattern ^ (0 << bitnum)) & (1 << bitnum)
	case H:
		return (PaddingPattern ^ (1 << bitnum)) & (1 << bitnum)
	default:
		return 0
	}
}

func (v *BitVec) locate(bitnr int) (int, uint, error) {
	if bitnr < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrOutOfRange, bitnr)
	}
	bytenum := bitnr / 8
	if bytenum >= len(v.Data) {
		return 0, 0, fmt.Errorf("%w: %d", ErrOutOfRange, bitnr)
	}
	return bytenum, uint(7 - (bitnr % 8)), nil
}

// GetBitPos returns the raw value (Zero or One) of the bit at the given absolute position.
func (v *BitVec) GetBitPos(bitnr int) (Bit, error) {
	bytenum, bitnum, err := v.locate(bitnr)
	if err != nil {
		return Zero, err
	}
	if v.Data[bytenum]&maskForBit(One, bitnum) != 0 {
		return One, nil
	}
	return Zero, nil
}

// GetBitPosHigh interprets the bit at the given position as CSN.1 L or H: a bit that differs
// from the padding pattern at this position is H, a bit that matches it is L.
func (v *BitVec) GetBitPosHigh(bitnr int) (Bit, error) {
	bytenum, bitnum, err := v.locate(bitnr)
	if err != nil {
		return L, err
	}
	if v.Data[bytenum]&(1<<bitnum) == maskForBit(H, bitnum) {
		return H, nil
	}
	return L, nil
}

// SetBitPos sets the bit at the given absolute position.
func (v *BitVec) SetBitPos(bitnr int, bit Bit) error {
	bytenum, bitnum, err := v.locate(bitnr)
	if err != nil {
		return err
	}
	v.Data[bytenum] &^= maskForBit(One, bitnum)
	v.Data[bytenum] |= maskForBit(bit, bitnum)
	return nil
}

// SetBit sets the bit at the cursor and advances the cursor.
func (v *BitVec) SetBit(bit Bit) error {
	err := v.SetBitPos(v.CurBit, bit)
	if err != nil {
		return err
	}
	v.CurBit++
	return nil
}

// GetBit reads the raw bit at the cursor and advances the cursor.
func (v *BitVec) GetBit() (Bit, error) {
	bit, err := v.GetBitPos(v.CurBit)
	if err != nil {
		return bit, err
	}
	v.CurBit++
	return bit, nil
}

// SetBits writes the given bits at the cursor.
func (v *BitVec) SetBits(bits []Bit) error {
	for _, bit := range bits {
		err := v.SetBit(bit)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetUint writes the lowest count bits of value at the cursor, MSB first.
func (v *BitVec) SetUint(value uint32, count int) error {
	if count < 0 || count > 32 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	for i := 0; i < count; i++ {
		bit := Zero
		if value&(1<<uint(count-i-1)) != 0 {
			bit = One
		}
		err := v.SetBit(bit)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetUint reads count bits at the cursor as an unsigned integer, MSB first.
func (v *BitVec) GetUint(count int) (uint32, error) {
	if count < 0 || count > 32 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if v.CurBit+count > v.Len() {
		return 0, fmt.Errorf("%w: %d+%d", ErrOutOfRange, v.CurBit, count)
	}
	var result uint32
	for i := 0; i < count; i++ {
		bit, err := v.GetBit()
		if err != nil {
			return 0, err
		}
		result <<= 1
		if bit == One {
			result |= 1
		}
	}
	return result, nil
}

// SetBytes writes the given bytes at the cursor, which does not need to be byte aligned.
func (v *BitVec) SetBytes(data []byte) error {
	if v.CurBit+len(data)*8 > v.Len() {
		return fmt.Errorf("%w: %d+%d", ErrOutOfRange, v.CurBit, len(data)*8)
	}
	for _, b := range data {
		err := v.SetUint(uint32(b), 8)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetBytes reads len(out) bytes at the cursor.
func (v *BitVec) GetBytes(out []byte) error {
	if v.CurBit+len(out)*8 > v.Len() {
		return fmt.Errorf("%w: %d+%d", ErrOutOfRange, v.CurBit, len(out)*8)
	}
	for i := range out {
		b, err := v.GetUint(8)
		if err != nil {
			return err
		}
		out[i] = byte(b)
	}
	return nil
}

// FindBitPos scans from position n for the next bit with the given raw value.
// It returns -1 if there is none.
func (v *BitVec) FindBitPos(n int, val Bit) int {
	for i := n; i < v.Len(); i++ {
		bit, err := v.GetBitPos(i)
		if err != nil {
			return -1
		}
		if bit == val {
			return i
		}
	}
	return -1
}

// GetNthSetBit returns the position of the n-th bit that is set, counting from 1.
// It returns 0 if there are less than n bits set.
func (v *BitVec) GetNthSetBit(n int) int {
	k := 0
	for i := 0; i < v.Len(); i++ {
		bit, _ := v.GetBitPos(i)
		if bit == One {
			k++
			if k == n {
				return i
			}
		}
	}
	return 0
}

// SparePadding fills the bits from the cursor up to and including upToBit with L.
func (v *BitVec) SparePadding(upToBit int) error {
	for i := v.CurBit; i <= upToBit; i++ {
		err := v.SetBit(L)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the data and moves the cursor back to the start.
func (v *BitVec) Reset() {
	for i := range v.Data {
		v.Data[i] = 0
	}
	v.CurBit = 0
}

// UnhexString loads the hex encoded data into the vector and resets the cursor.
func (v *BitVec) UnhexString(s string) error {
	data, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(data) > len(v.Data) {
		return fmt.Errorf("%w: %d bytes into %d", ErrOutOfRange, len(data), len(v.Data))
	}
	v.Reset()
	copy(v.Data, data)
	return nil
}

// ReadField reads length bits (up to 64) starting at *index and advances *index.
// The cursor is not touched.
func (v *BitVec) ReadField(index *int, length int) (uint64, error) {
	if length < 0 || length > 64 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, length)
	}
	if *index+length > v.Len() {
		return 0, fmt.Errorf("%w: %d+%d", ErrOutOfRange, *index, length)
	}
	var result uint64
	for i := 0; i < length; i++ {
		bit, err := v.GetBitPos(*index)
		if err != nil {
			return 0, err
		}
		result <<= 1
		if bit == One {
			result |= 1
		}
		*index++
	}
	return result, nil
}

// WriteField writes the lowest length bits of value starting at *index and advances *index.
// The cursor is not touched.
func (v *BitVec) WriteField(index *int, value uint64, length int) error {
	if length < 0 || length > 64 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, length)
	}
	if *index+length > v.Len() {
		return fmt.Errorf("%w: %d+%d", ErrOutOfRange, *index, length)
	}
	for i := 0; i < length; i++ {
		bit := Zero
		if value&(1<<uint(length-i-1)) != 0 {
			bit = One
		}
		err := v.SetBitPos(*index, bit)
		if err != nil {
			return err
		}
		*index++
	}
	return nil
}

// String dumps the bits up to the cursor, grouped by octet.
func (v *BitVec) String() string {
	var sb strings.Builder
	for i := 0; i < v.CurBit && i < v.Len(); i++ {
		if i > 0 && i%8 == 0 {
			sb.WriteByte(' ')
		}
		bit, _ := v.GetBitPos(i)
		sb.WriteString(bit.String())
	}
	return sb.String()
}
