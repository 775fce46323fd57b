/*
The package sched implements the TDMA frame scheduler of the layer 1: schedule sets of radio operations
that are armed relative to the current frame, one-shot events bound to an absolute GSM frame number, and
the multiframe tasks that arm the sets of the active logical channels.

The scheduler never calls back into arbitrary code. Every item names an operation that is dispatched to
an Executor provided by the radio layer.
*/
package sched

import "fmt"

// Op enum of all radio operations that can be scheduled
type Op uint8

// All radio operations
const (
	OpNone Op = iota
	OpRxNormalBurst
	OpTxNormalBurst
	OpRxSyncBurst
	OpRxFreqBurst
	OpTxRACH
	OpRxPowerMeas
	OpNeighPM
	OpRxPDTCH
	OpTxPDTCH
	OpTCH
	OpTCHA
	OpTCHD
	OpCompletion
	OpEnd
)

var opNames = map[Op]string{
	OpNone:          "NONE",
	OpRxNormalBurst: "RX_NB",
	OpTxNormalBurst: "TX_NB",
	OpRxSyncBurst:   "RX_SB",
	OpRxFreqBurst:   "RX_FB",
	OpTxRACH:        "TX_RACH",
	OpRxPowerMeas:   "PM",
	OpNeighPM:       "NEIGH_PM",
	OpRxPDTCH:       "RX_PDTCH",
	OpTxPDTCH:       "TX_PDTCH",
	OpTCH:           "TCH",
	OpTCHA:          "TCH_A",
	OpTCHD:          "TCH_D",
	OpCompletion:    "COMPL",
	OpEnd:           "END",
}

func (o Op) String() string {
	name, ok := opNames[o]
	if !ok {
		return fmt.Sprintf("OP(%d)", uint8(o))
	}
	return name
}

// Phase distinguishes the command that programs the radio from the response that collects the result
// two frames later.
type Phase uint8

// The phases of an operation
const (
	Cmd Phase = iota
	Resp
)

func (p Phase) String() string {
	if p == Resp {
		return "resp"
	}
	return "cmd"
}

// Item is one scheduled operation inside a TDMA frame. Items of one frame are executed in ascending
// order of their offset.
type Item struct {
	Op     Op
	Phase  Phase
	Offset int8
	P1     uint8
	P2     uint8
}

// Command returns an item that programs the given operation.
func Command(op Op, offset int8, p1, p2 uint8) Item {
	return Item{Op: op, Phase: Cmd, Offset: offset, P1: p1, P2: p2}
}

// Response returns an item that collects the result of the given operation.
func Response(op Op, offset int8, p1, p2 uint8) Item {
	return Item{Op: op, Phase: Resp, Offset: offset, P1: p1, P2: p2}
}

// EndFrame delimits the items of one TDMA frame inside a set.
func EndFrame() Item {
	return Item{Op: OpEnd}
}

// EndSet terminates a set.
func EndSet() Item {
	return Item{Op: OpEnd, P1: 1}
}

func (i Item) endOfFrame() bool {
	return i.Op == OpEnd && i.P1 == 0
}

func (i Item) endOfSet() bool {
	return i.Op == OpEnd && i.P1 != 0
}

func (i Item) String() string {
	return fmt.Sprintf("%s/%s@%d(%d,%d)", i.Op, i.Phase, i.Offset, i.P1, i.P2)
}

// Set is a sequence of items grouped into consecutive TDMA frames by EndFrame and terminated by EndSet.
// A set without EndSet ends with its last item.
type Set []Item

// Frames returns the number of TDMA frames the set spans.
func (s Set) Frames() int {
	result := 0
	open := false
	for _, item := range s {
		switch {
		case item.endOfSet():
			if open {
				result++
			}
			return result
		case item.endOfFrame():
			result++
			open = false
		default:
			open = true
		}
	}
	if open {
		result++
	}
	return result
}

// Executor carries out the scheduled operations. It is implemented by the radio layer. The parameter
// p3 is the value given when the set was scheduled, usually the multiframe task and its flags.
type Executor interface {
	Execute(item Item, p3 uint16) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(item Item, p3 uint16) error

// Execute calls f(item, p3).
func (f ExecutorFunc) Execute(item Item, p3 uint16) error {
	return f(item, p3)
}
