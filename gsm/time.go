package gsm

import "fmt"

// Hyperframe is the number of TDMA frames after which the frame number wraps around
const Hyperframe = 26 * 51 * 2048

// Time represents the GSM time of one TDMA frame according to 3GPP TS 45.002 3.3.2.2
type Time struct {
	FN uint32 // frame number, 0 .. Hyperframe-1
	T1 uint16 // FN div (26*51), 0 .. 2047
	T2 uint8  // FN mod 26
	T3 uint8  // FN mod 51
	TC uint8  // (FN div 51) mod 8
}

// TimeFromFN computes the GSM time for the given frame number.
func TimeFromFN(fn uint32) Time {
	fn %= Hyperframe
	return Time{
		FN: fn,
		T1: uint16(fn / (26 * 51)),
		T2: uint8(fn % 26),
		T3: uint8(fn % 51),
		TC: uint8((fn / 51) % 8),
	}
}

// FNFromTime computes the frame number from T1, T2 and T3 (the other fields are ignored).
func FNFromTime(t1 uint16, t2 uint8, t3 uint8) uint32 {
	diff := (int(t3) - int(t2)) % 26
	if diff < 0 {
		diff += 26
	}
	return uint32(51*diff+int(t3)+51*26*int(t1)) % Hyperframe
}

// Inc advances the time by the given number of frames.
func (t *Time) Inc(frames uint32) {
	*t = TimeFromFN(FNAdd(t.FN, frames))
}

func (t Time) String() string {
	return fmt.Sprintf("%06d/%02d/%02d/%02d/%02d", t.FN, t.T1, t.T2, t.T3, t.TC)
}

// FNAdd adds the given number of frames to the frame number, wrapping at the hyperframe.
func FNAdd(fn uint32, frames uint32) uint32 {
	return uint32((uint64(fn) + uint64(frames)) % Hyperframe)
}

// FNSub returns the number of frames from b to a, wrapping at the hyperframe.
func FNSub(a uint32, b uint32) uint32 {
	return uint32((int64(a) - int64(b) + Hyperframe) % Hyperframe)
}

// FNCompare compares two frame numbers taking the wrap-around into account.
// It returns -1 if a is before b, 0 if both are equal, and 1 if a is after b.
// Frame numbers more than half a hyperframe apart are considered wrapped.
func FNCompare(a uint32, b uint32) int {
	if a == b {
		return 0
	}
	if FNSub(a, b) < Hyperframe/2 {
		return 1
	}
	return -1
}
