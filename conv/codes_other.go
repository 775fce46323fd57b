package conv

// Non-GSM codes that cover the tail-biting and truncation terminations.
var (
	// GMR-1 TCH3 speech: non-recursive, tail-biting, punctured
	GMR1TCH3Speech = MustNewCode("gmr1_tch3_speech", 48, TailBiting, []Poly{{G4, 1}, {G7, 1}}, []int{
		3, 7, 11, 15, 19, 23, 27, 31, 35, 39, 43, 47,
		51, 55, 59, 63, 67, 71, 75, 79, 83, 87, 91, 95,
	})

	// WiMax FCH: non-recursive, tail-biting, not punctured
	WiMaxFCH = MustNewCode("wimax_fch", 48, TailBiting, []Poly{{G7, 1}, {G4, 1}}, nil)

	// The xCCH code without flushing
	GSMXCCHTruncated = MustNewCode("xcch_trunc", 224, Truncation, []Poly{{G0, 1}, {G1, 1}}, nil)
)
