package coding

import (
	"fmt"

	"github.com/ftl/gsm-ms/bits"
)

// Burst dimensions according to 3GPP TS 45.002 5.2
const (
	BurstLen        = 148 // without the guard period
	BurstPayloadLen = 116 // two halves of 57 data bits plus the two stealing flags
	InterleavedLen  = 114 // data bits of one burst
	TSCLen          = 26
	tailLen         = 3
	halfLen         = 57
)

// TSC is a training sequence of a normal burst.
type TSC [TSCLen]bits.Ubit

// TrainingSequences are the eight normal burst training sequences of 3GPP TS 45.002 5.2.3.
var TrainingSequences = [8]TSC{
	{0, 0, 1, 0, 0, 1, 0, 1, 1, 1, 0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 1, 0, 1, 1, 1},
	{0, 0, 1, 0, 1, 1, 0, 1, 1, 1, 0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 1, 1, 0, 1, 1, 1},
	{0, 1, 0, 0, 0, 0, 1, 1, 1, 0, 1, 1, 1, 0, 1, 0, 0, 1, 0, 0, 0, 0, 1, 1, 1, 0},
	{0, 1, 0, 0, 0, 1, 1, 1, 1, 0, 1, 1, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1, 0},
	{0, 0, 0, 1, 1, 0, 1, 0, 1, 1, 1, 0, 0, 1, 0, 0, 0, 0, 0, 1, 1, 0, 1, 0, 1, 1},
	{0, 1, 0, 0, 1, 1, 1, 0, 1, 0, 1, 1, 0, 0, 0, 0, 0, 1, 0, 0, 1, 1, 1, 0, 1, 0},
	{1, 0, 1, 0, 0, 1, 1, 1, 1, 1, 0, 1, 1, 0, 0, 0, 1, 0, 1, 0, 0, 1, 1, 1, 1, 1},
	{1, 1, 1, 0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1, 0, 1, 1, 1, 0, 1, 1, 1, 1, 0, 0},
}

// BurstMapNormal composes a normal burst: 3 tail bits, 57 data bits, stealing flag hl,
// 26 bits training sequence, stealing flag hn, 57 data bits, 3 tail bits.
// The payload holds the 116 bits data and stealing flags in transmission order.
func BurstMapNormal(burst []bits.Ubit, payload []bits.Ubit, tsc uint8) error {
	if len(burst) < BurstLen {
		return fmt.Errorf("burst too short: %d", len(burst))
	}
	if len(payload) < BurstPayloadLen {
		return fmt.Errorf("burst payload too short: %d", len(payload))
	}
	if int(tsc) >= len(TrainingSequences) {
		return fmt.Errorf("invalid training sequence code: %d", tsc)
	}

	for i := 0; i < tailLen; i++ {
		burst[i] = 0
		burst[BurstLen-tailLen+i] = 0
	}
	copy(burst[tailLen:tailLen+halfLen+1], payload[:halfLen+1])
	copy(burst[tailLen+halfLen+1:tailLen+halfLen+1+TSCLen], TrainingSequences[tsc][:])
	copy(burst[tailLen+halfLen+1+TSCLen:BurstLen-tailLen], payload[halfLen+1:BurstPayloadLen])
	return nil
}

// BurstUnmapNormal extracts the 116 payload soft bits from a received normal burst.
func BurstUnmapNormal(payload []bits.Sbit, burst []bits.Sbit) error {
	if len(burst) < BurstLen {
		return fmt.Errorf("burst too short: %d", len(burst))
	}
	if len(payload) < BurstPayloadLen {
		return fmt.Errorf("burst payload too short: %d", len(payload))
	}
	copy(payload[:halfLen+1], burst[tailLen:tailLen+halfLen+1])
	copy(payload[halfLen+1:BurstPayloadLen], burst[tailLen+halfLen+1+TSCLen:BurstLen-tailLen])
	return nil
}

// BlockAssembler collects the four bursts of one xCCH block. Bursts are identified by their
// index inside the block (bid 0..3). A block only starts with burst 0.
type BlockAssembler struct {
	bursts [4 * BurstPayloadLen]bits.Sbit
	mask   uint8
}

// Add stores the payload of a received normal burst. It reports true if the burst completes
// a block, i.e. the burst with bid 3 was added. complete reports whether all four bursts
// were received.
func (a *BlockAssembler) Add(bid uint8, burst []bits.Sbit) (done bool, complete bool, err error) {
	if bid > 3 {
		return false, false, fmt.Errorf("invalid burst id: %d", bid)
	}
	if a.mask == 0 && bid != 0 {
		return false, false, nil
	}
	if bid == 0 {
		// missing bursts are decoded as erasures
		a.Reset()
	}
	err = BurstUnmapNormal(a.bursts[int(bid)*BurstPayloadLen:], burst)
	if err != nil {
		return false, false, err
	}
	a.mask |= 1 << bid
	if bid != 3 {
		return false, false, nil
	}
	complete = a.mask&0x0f == 0x0f
	a.mask = 0
	return true, complete, nil
}

// Bursts returns the collected payload of the four bursts.
func (a *BlockAssembler) Bursts() []bits.Sbit {
	return a.bursts[:]
}

// Reset drops a partially received block.
func (a *BlockAssembler) Reset() {
	a.mask = 0
	for i := range a.bursts {
		a.bursts[i] = 0
	}
}
