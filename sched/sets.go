package sched

// Schedule sets of the radio operations. The normal burst sets span four bursts: the command of a
// burst is executed one frame ahead, its response two frames after the command.
var (
	NBQuadDL = quadSet(OpRxNormalBurst, 0, 0, 0)
	NBQuadUL = quadSet(OpTxNormalBurst, 3, -4, 2)

	PDTCHQuadDL = quadSet(OpRxPDTCH, 0, -4, 0)
	PDTCHQuadUL = quadSet(OpTxPDTCH, 3, -4, 2)

	PMSet      = singleSet(OpRxPowerMeas, 0, -4, 1)
	NeighPMSet = singleSet(OpNeighPM, 0, -4, 1)
	RACHSet    = singleSet(OpTxRACH, 3, -4, 1)
	SBSet      = singleSet(OpRxSyncBurst, 0, 0, 0)

	TCHSet  = singleSet(OpTCH, 0, -4, 0)
	TCHASet = singleSet(OpTCHA, 0, -4, 0)
	TCHDSet = singleSet(OpTCHD, 0, -4, 0)

	FBSet = fbSet(12)
)

func quadSet(op Op, cmdOffset, respOffset int8, p1 uint8) Set {
	return Set{
		Command(op, cmdOffset, p1, 0), EndFrame(),
		Command(op, cmdOffset, p1, 1), EndFrame(),
		Response(op, respOffset, p1, 0), Command(op, cmdOffset, p1, 2), EndFrame(),
		Response(op, respOffset, p1, 1), Command(op, cmdOffset, p1, 3), EndFrame(),
		Response(op, respOffset, p1, 2), EndFrame(),
		Response(op, respOffset, p1, 3), EndFrame(),
		EndSet(),
	}
}

func singleSet(op Op, cmdOffset, respOffset int8, p1 uint8) Set {
	return Set{
		Command(op, cmdOffset, p1, 0), EndFrame(),
		EndFrame(),
		Response(op, respOffset, p1, 0), EndFrame(),
		EndSet(),
	}
}

// fbSet looks for the frequency burst in the given number of consecutive frames.
func fbSet(attempts int) Set {
	result := Set{
		Command(OpRxFreqBurst, 0, 0, 0), EndFrame(),
		EndFrame(),
	}
	for i := 1; i <= attempts; i++ {
		result = append(result, Response(OpRxFreqBurst, 0, 0, uint8(i)), EndFrame())
	}
	return append(result, EndSet())
}
