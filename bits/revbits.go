package bits

// ReversalMode selects which groups of bits are swapped by BitReversal
type ReversalMode int

// Common bit reversal modes, see "Hacker's Delight" chapter 7
const (
	ReverseBitsInBytes    ReversalMode = 7
	ReverseBitsInWords    ReversalMode = 15
	ReverseBitsInDWords   ReversalMode = 31
	ReverseBytesInWords   ReversalMode = 8
	ReverseBytesInDWords  ReversalMode = 24
	ReverseWordsInDWords  ReversalMode = 16
	ReverseNibblesInBytes ReversalMode = 4
)

// BitReversal is the generalized bit reversal: every set bit k in mode swaps adjacent groups of 2^k bits.
func BitReversal(x uint32, mode ReversalMode) uint32 {
	if mode&1 != 0 {
		x = (x&0x55555555)<<1 | (x&0xAAAAAAAA)>>1
	}
	if mode&2 != 0 {
		x = (x&0x33333333)<<2 | (x&0xCCCCCCCC)>>2
	}
	if mode&4 != 0 {
		x = (x&0x0F0F0F0F)<<4 | (x&0xF0F0F0F0)>>4
	}
	if mode&8 != 0 {
		x = (x&0x00FF00FF)<<8 | (x&0xFF00FF00)>>8
	}
	if mode&16 != 0 {
		x = (x&0x0000FFFF)<<16 | (x&0xFFFF0000)>>16
	}
	return x
}

// RevByteBits32 reverses the bit order inside each byte of x.
func RevByteBits32(x uint32) uint32 {
	return BitReversal(x, ReverseBitsInBytes)
}

// RevByteBits8 reverses the bit order of x.
func RevByteBits8(x uint8) uint8 {
	x = (x&0x55)<<1 | (x&0xAA)>>1
	x = (x&0x33)<<2 | (x&0xCC)>>2
	x = (x&0x0F)<<4 | (x&0xF0)>>4
	return x
}

// RevByteBitsBuf reverses the bit order of every byte in buf in place.
func RevByteBitsBuf(buf []byte) {
	for i, b := range buf {
		buf[i] = RevByteBits8(b)
	}
}
