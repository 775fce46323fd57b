package sched

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ftl/gsm-ms/gsm"
)

// Task enum of the multiframe tasks, each one handles one logical channel or measurement
type Task uint8

// All multiframe tasks
const (
	TaskBCCHNorm Task = iota
	TaskBCCHExt
	TaskCCCH
	TaskCCCHComb
	TaskSDCCH4_0
	TaskSDCCH4_1
	TaskSDCCH4_2
	TaskSDCCH4_3
	TaskSDCCH8_0
	TaskSDCCH8_1
	TaskSDCCH8_2
	TaskSDCCH8_3
	TaskSDCCH8_4
	TaskSDCCH8_5
	TaskSDCCH8_6
	TaskSDCCH8_7
	TaskTCHFEven
	TaskTCHFOdd
	TaskTCHH0
	TaskTCHH1
	TaskNeighPM51C0T0
	TaskNeighPM51
	TaskNeighPM26E
	TaskNeighPM26O
	TaskULAllNB
	TaskPDTCH
	taskCount
)

var taskNames = map[Task]string{
	TaskBCCHNorm:      "BCCH_NORM",
	TaskBCCHExt:       "BCCH_EXT",
	TaskCCCH:          "CCCH",
	TaskCCCHComb:      "CCCH_COMB",
	TaskSDCCH4_0:      "SDCCH4_0",
	TaskSDCCH4_1:      "SDCCH4_1",
	TaskSDCCH4_2:      "SDCCH4_2",
	TaskSDCCH4_3:      "SDCCH4_3",
	TaskSDCCH8_0:      "SDCCH8_0",
	TaskSDCCH8_1:      "SDCCH8_1",
	TaskSDCCH8_2:      "SDCCH8_2",
	TaskSDCCH8_3:      "SDCCH8_3",
	TaskSDCCH8_4:      "SDCCH8_4",
	TaskSDCCH8_5:      "SDCCH8_5",
	TaskSDCCH8_6:      "SDCCH8_6",
	TaskSDCCH8_7:      "SDCCH8_7",
	TaskTCHFEven:      "TCH_F_EVEN",
	TaskTCHFOdd:       "TCH_F_ODD",
	TaskTCHH0:         "TCH_H_0",
	TaskTCHH1:         "TCH_H_1",
	TaskNeighPM51C0T0: "NEIGH_PM51_C0T0",
	TaskNeighPM51:     "NEIGH_PM51",
	TaskNeighPM26E:    "NEIGH_PM26E",
	TaskNeighPM26O:    "NEIGH_PM26O",
	TaskULAllNB:       "UL_ALL_NB",
	TaskPDTCH:         "PDTCH",
}

func (t Task) String() string {
	name, ok := taskNames[t]
	if !ok {
		return fmt.Sprintf("TASK(%d)", uint8(t))
	}
	return name
}

// Mask returns the bit of the task inside a task mask.
func (t Task) Mask() uint32 {
	return 1 << uint(t)
}

// FlagSACCH marks the multiframe entries that carry the SACCH. The flags are passed in the upper byte of p3.
const FlagSACCH uint16 = 1 << 0

// TaskFromP3 splits the p3 parameter of a multiframe item into the task and its flags.
func TaskFromP3(p3 uint16) (Task, uint16) {
	return Task(p3 & 0xff), p3 >> 8
}

type mframeEntry struct {
	set     Set
	modulo  uint32
	frameNr uint32
	flags   uint16
}

func nbSDCCH(dl, ul, sacchDL, sacchUL uint32) []mframeEntry {
	return []mframeEntry{
		{set: NBQuadDL, modulo: 51, frameNr: dl},
		{set: NBQuadUL, modulo: 51, frameNr: ul},
		{set: NBQuadDL, modulo: 2 * 51, frameNr: sacchDL, flags: FlagSACCH},
		{set: NBQuadUL, modulo: 2 * 51, frameNr: sacchUL, flags: FlagSACCH},
	}
}

func tchEntries(traffic func(i uint32) Set, sacchFrame uint32) []mframeEntry {
	result := make([]mframeEntry, 0, 13)
	for i := uint32(0); i < 12; i++ {
		result = append(result, mframeEntry{set: traffic(i), modulo: 13, frameNr: i})
	}
	return append(result, mframeEntry{set: TCHASet, modulo: 26, frameNr: sacchFrame, flags: FlagSACCH})
}

func every(set Set, modulo uint32, frames ...uint32) []mframeEntry {
	result := make([]mframeEntry, len(frames))
	for i, f := range frames {
		result[i] = mframeEntry{set: set, modulo: modulo, frameNr: f}
	}
	return result
}

// multiframe layouts of 3GPP TS 45.002 7, Table 3 and 4
var taskEntries = map[Task][]mframeEntry{
	TaskBCCHNorm: every(NBQuadDL, 51, 2),
	TaskBCCHExt:  every(NBQuadDL, 51, 6),
	TaskCCCH:     every(NBQuadDL, 51, 6, 12, 16, 22, 26, 32, 36, 42, 46),
	TaskCCCHComb: every(NBQuadDL, 51, 6, 12, 16),

	TaskSDCCH4_0: nbSDCCH(22, 22+15, 42, 42+15),
	TaskSDCCH4_1: nbSDCCH(26, 26+15, 46, 46+15),
	TaskSDCCH4_2: nbSDCCH(32, 32+15, 51+42, 51+42+15),
	TaskSDCCH4_3: nbSDCCH(36, 36+15, 51+46, 51+46+15),

	TaskSDCCH8_0: nbSDCCH(0, 0+15, 32, 32+15),
	TaskSDCCH8_1: nbSDCCH(4, 4+15, 36, 36+15),
	TaskSDCCH8_2: nbSDCCH(8, 8+15, 40, 40+15),
	TaskSDCCH8_3: nbSDCCH(12, 12+15, 44, 44+15),
	TaskSDCCH8_4: nbSDCCH(16, 16+15, 51+32, 51+32+15),
	TaskSDCCH8_5: nbSDCCH(20, 20+15, 51+36, 51+36+15),
	TaskSDCCH8_6: nbSDCCH(24, 24+15, 51+40, 51+40+15),
	TaskSDCCH8_7: nbSDCCH(28, 28+15, 51+44, 51+44+15),

	TaskTCHFEven: tchEntries(func(uint32) Set { return TCHSet }, 12),
	TaskTCHFOdd:  tchEntries(func(uint32) Set { return TCHSet }, 25),
	TaskTCHH0: tchEntries(func(i uint32) Set {
		if i%2 == 0 {
			return TCHSet
		}
		return TCHDSet
	}, 12),
	TaskTCHH1: tchEntries(func(i uint32) Set {
		if i%2 == 0 {
			return TCHDSet
		}
		return TCHSet
	}, 25),

	TaskNeighPM51C0T0: every(NeighPMSet, 51, 0, 10, 20, 30, 40),
	TaskNeighPM51:     every(NeighPMSet, 51, 50),
	TaskNeighPM26E:    every(NeighPMSet, 26, 25),
	TaskNeighPM26O:    every(NeighPMSet, 26, 12),

	TaskULAllNB: every(NBQuadUL, 4, 0),

	// radio blocks B0..B11 of the 52-multiframe, frames 12, 25, 38 and 51 carry PTCCH and idle frames
	TaskPDTCH: every(PDTCHQuadDL, 52, 0, 4, 8, 13, 17, 21, 26, 30, 34, 39, 43, 47),
}

// TaskChanNr returns the channel number (3GPP TS 48.058 9.3.1) of the given task on the given timeslot.
// Tasks that cannot be expressed as channel number get the C-bits 0.
func TaskChanNr(task Task, tn uint8) gsm.ChanNr {
	var cbits uint8
	switch {
	case task == TaskBCCHNorm || task == TaskBCCHExt:
		cbits = 0x10
	case task == TaskCCCH || task == TaskCCCHComb:
		cbits = 0x12
	case task >= TaskSDCCH4_0 && task <= TaskSDCCH4_3:
		cbits = 0x04 + uint8(task-TaskSDCCH4_0)
	case task >= TaskSDCCH8_0 && task <= TaskSDCCH8_7:
		cbits = 0x08 + uint8(task-TaskSDCCH8_0)
	case task == TaskTCHFEven || task == TaskTCHFOdd:
		cbits = 0x01
	case task == TaskTCHH0:
		cbits = 0x02
	case task == TaskTCHH1:
		cbits = 0x03
	case task == TaskPDTCH:
		cbits = 0x18
	default:
		cbits = 0
	}
	return gsm.NewChanNrFromCBits(cbits, tn)
}

// Mframe arms the schedule sets of the active multiframe tasks. New tasks are only activated when no
// previously armed set is still running.
type Mframe struct {
	mutex  sync.Mutex
	tasks  uint32
	target uint32
	safeFN uint32 // gsm.Hyperframe or above: safe to switch
	logger *log.Logger
}

// NewMframe returns a multiframe scheduler without any active task.
func NewMframe() *Mframe {
	return &Mframe{
		safeFN: ^uint32(0),
		logger: log.New(io.Discard),
	}
}

// WithLogger sets the logger of the multiframe scheduler.
func (m *Mframe) WithLogger(logger *log.Logger) *Mframe {
	m.logger = logger
	return m
}

// Enable adds the task to the target tasks.
func (m *Mframe) Enable(task Task) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.target |= task.Mask()
}

// Disable removes the task from the target tasks.
func (m *Mframe) Disable(task Task) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.target &^= task.Mask()
}

// SetTasks replaces the target tasks with the given mask.
func (m *Mframe) SetTasks(mask uint32) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.target = mask
}

// Tasks returns the currently active tasks.
func (m *Mframe) Tasks() uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.tasks
}

// Target returns the target tasks.
func (m *Mframe) Target() uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.target
}

// Reset disables all tasks.
func (m *Mframe) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tasks = 0
	m.target = 0
	m.safeFN = ^uint32(0)
}

// Schedule is called once per frame. It arms the sets of all active tasks that have to start
// ScheduleAhead frames after the given frame.
func (m *Mframe) Schedule(fn uint32, tdma *TDMA) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	fnDiff := int64(m.safeFN) - int64(fn)
	if fnDiff <= 0 || fnDiff >= gsm.Hyperframe/2 || m.safeFN >= gsm.Hyperframe {
		if m.tasks != m.target {
			m.logger.Debug("mframe tasks changed", "fn", fn, "from", fmt.Sprintf("%08x", m.tasks), "to", fmt.Sprintf("%08x", m.target))
		}
		m.tasks = m.target
	} else {
		m.tasks &= m.target
	}

	var errs []error
	for task := Task(0); task < taskCount; task++ {
		if m.tasks&task.Mask() == 0 {
			continue
		}
		err := m.scheduleTask(fn, task, tdma)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mframe) scheduleTask(fn uint32, task Task, tdma *TDMA) error {
	for _, entry := range taskEntries[task] {
		trigger := entry.frameNr % entry.modulo
		current := gsm.FNAdd(fn, ScheduleAhead) % entry.modulo
		if current != trigger {
			continue
		}

		frames, err := tdma.ScheduleSet(ScheduleAhead-ScheduleLatency, entry.set, uint16(task)|entry.flags<<8)
		if err != nil {
			return err
		}

		// the last radio command of the set is issued two frames before its end
		safe := uint32((int64(fn) + int64(frames) - 2 + gsm.Hyperframe) % gsm.Hyperframe)
		if safe > m.safeFN || m.safeFN >= gsm.Hyperframe {
			m.safeFN = safe
		}
	}
	return nil
}
