package sched

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ftl/gsm-ms/gsm"
)

type executed struct {
	frame int
	item  Item
	p3    uint16
}

type recorder struct {
	frame int
	items []executed
	err   error
}

func (r *recorder) Execute(item Item, p3 uint16) error {
	r.items = append(r.items, executed{frame: r.frame, item: item, p3: p3})
	return r.err
}

func (r *recorder) run(t *testing.T, tdma *TDMA, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		_, err := tdma.Execute(r)
		require.NoError(t, err)
		r.frame++
	}
}

func TestSetFrames(t *testing.T) {
	tt := []struct {
		desc     string
		set      Set
		expected int
	}{
		{"empty", Set{}, 0},
		{"only end", Set{EndSet()}, 0},
		{"no end marker", Set{Command(OpTCH, 0, 0, 0)}, 1},
		{"nb quad", NBQuadDL, 6},
		{"single", PMSet, 3},
		{"fb", FBSet, 14},
		{"trailing item", Set{Command(OpTCH, 0, 0, 0), EndFrame(), Command(OpTCH, 0, 0, 0), EndSet()}, 2},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.set.Frames())
		})
	}
}

func TestTDMAScheduleSet(t *testing.T) {
	tdma := NewTDMA()
	frames, err := tdma.ScheduleSet(1, NBQuadDL, 0x0102)
	require.NoError(t, err)
	assert.Equal(t, 6, frames)
	assert.Equal(t, 6, tdma.Delay())
	assert.False(t, tdma.Empty())

	r := &recorder{}
	r.run(t, tdma, 8)
	assert.True(t, tdma.Empty())
	assert.Equal(t, -1, tdma.Delay())

	expected := []executed{
		{1, Command(OpRxNormalBurst, 0, 0, 0), 0x0102},
		{2, Command(OpRxNormalBurst, 0, 0, 1), 0x0102},
		{3, Response(OpRxNormalBurst, 0, 0, 0), 0x0102},
		{3, Command(OpRxNormalBurst, 0, 0, 2), 0x0102},
		{4, Response(OpRxNormalBurst, 0, 0, 1), 0x0102},
		{4, Command(OpRxNormalBurst, 0, 0, 3), 0x0102},
		{5, Response(OpRxNormalBurst, 0, 0, 2), 0x0102},
		{6, Response(OpRxNormalBurst, 0, 0, 3), 0x0102},
	}
	assert.Equal(t, expected, r.items)
}

func TestTDMAOffsetOrder(t *testing.T) {
	tdma := NewTDMA()
	_, err := tdma.ScheduleSet(0, NBQuadUL, 0)
	require.NoError(t, err)

	pending := tdma.Pending(2)
	require.Len(t, pending, 2)
	assert.Equal(t, Response(OpTxNormalBurst, -4, 2, 0), pending[0])
	assert.Equal(t, Command(OpTxNormalBurst, 3, 2, 2), pending[1])
}

func TestTDMAOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tdma := NewTDMA()
		offsets := rapid.SliceOfNDistinct(rapid.Int8(), 1, TDMASchedBucketSize, rapid.ID[int8]).Draw(t, "offsets")
		frame := rapid.IntRange(0, TDMASchedSize-1).Draw(t, "frame")
		for _, offset := range offsets {
			err := tdma.ScheduleItem(frame, Command(OpRxNormalBurst, offset, 0, 0), 0)
			if err != nil {
				t.Fatal(err)
			}
		}

		var actual []int8
		exec := ExecutorFunc(func(item Item, _ uint16) error {
			actual = append(actual, item.Offset)
			return nil
		})
		for i := 0; i <= frame; i++ {
			_, err := tdma.Execute(exec)
			if err != nil {
				t.Fatal(err)
			}
		}

		if len(actual) != len(offsets) {
			t.Fatalf("expected %d items, got %d", len(offsets), len(actual))
		}
		for i := 1; i < len(actual); i++ {
			if actual[i-1] >= actual[i] {
				t.Fatalf("wrong order: %v", actual)
			}
		}
	})
}

func TestTDMABucketFull(t *testing.T) {
	tdma := NewTDMA()
	for i := 0; i < TDMASchedBucketSize-1; i++ {
		require.NoError(t, tdma.ScheduleItem(2, Command(OpTCH, int8(i), 0, 0), 0))
	}

	// the set needs two items in frame 2, nothing is armed
	_, err := tdma.ScheduleSet(0, NBQuadUL, 0)
	assert.ErrorIs(t, err, ErrBucketFull)
	assert.Len(t, tdma.Pending(0), 0)
	assert.Len(t, tdma.Pending(2), TDMASchedBucketSize-1)

	require.NoError(t, tdma.ScheduleItem(2, Command(OpTCH, 100, 0, 0), 0))
	assert.ErrorIs(t, tdma.ScheduleItem(2, Command(OpTCH, 101, 0, 0), 0), ErrBucketFull)
}

func TestTDMASetTooLong(t *testing.T) {
	tdma := NewTDMA()
	_, err := tdma.ScheduleSet(TDMASchedSize-5, NBQuadDL, 0)
	assert.ErrorIs(t, err, ErrSetTooLong)
	_, err = tdma.ScheduleSet(-1, PMSet, 0)
	assert.ErrorIs(t, err, ErrSetTooLong)
	_, err = tdma.ScheduleSet(TDMASchedSize-6, NBQuadDL, 0)
	assert.NoError(t, err)
}

func TestTDMADoubleBooking(t *testing.T) {
	Debug = true
	defer func() { Debug = false }()

	tdma := NewTDMA()
	require.NoError(t, tdma.ScheduleItem(1, Command(OpTCH, 0, 0, 0), 0))
	assert.Panics(t, func() {
		_ = tdma.ScheduleItem(1, Command(OpTCH, 0, 0, 1), 0)
	})
	assert.NotPanics(t, func() {
		_ = tdma.ScheduleItem(1, Response(OpTCH, 0, 0, 1), 0)
	})
}

func TestTDMAExecutorErrors(t *testing.T) {
	tdma := NewTDMA()
	require.NoError(t, tdma.ScheduleItem(0, Command(OpTCH, 0, 0, 0), 0))
	require.NoError(t, tdma.ScheduleItem(0, Command(OpTCHA, 1, 0, 0), 0))

	failure := errors.New("radio failure")
	r := &recorder{err: failure}
	count, err := tdma.Execute(r)
	assert.Equal(t, 2, count)
	assert.ErrorIs(t, err, failure)
	assert.Len(t, r.items, 2)
}

func TestTDMAResetAndFlush(t *testing.T) {
	tdma := NewTDMA()
	_, err := tdma.ScheduleSet(0, FBSet, 0)
	require.NoError(t, err)
	_, err = tdma.Execute(ExecutorFunc(func(Item, uint16) error { return nil }))
	require.NoError(t, err)

	tdma.Flush()
	assert.True(t, tdma.Empty())
	assert.Equal(t, 1, tdma.current)

	_, err = tdma.ScheduleSet(0, PMSet, 0)
	require.NoError(t, err)
	tdma.Reset()
	assert.True(t, tdma.Empty())
	assert.Equal(t, 0, tdma.current)
}

func TestGSMTimePoolBound(t *testing.T) {
	gsmTime := NewGSMTime()
	for i := 0; i < GSMTimeEventCount; i++ {
		require.NoError(t, gsmTime.Schedule(uint32(100+i), PMSet, 0))
	}
	assert.Equal(t, GSMTimeEventCount, gsmTime.Len())
	assert.Equal(t, 0, gsmTime.Free())
	assert.ErrorIs(t, gsmTime.Schedule(200, PMSet, 0), ErrBusy)

	tdma := NewTDMA()
	require.NoError(t, gsmTime.Execute(98, tdma))
	assert.Equal(t, 1, gsmTime.Free())
	assert.NoError(t, gsmTime.Schedule(200, PMSet, 0))

	gsmTime.Reset()
	assert.Equal(t, 0, gsmTime.Len())
	assert.Equal(t, GSMTimeEventCount, gsmTime.Free())
}

func TestGSMTimeOrder(t *testing.T) {
	gsmTime := NewGSMTime()
	for _, fn := range []uint32{500, 20, gsm.Hyperframe - 3, 300, 20} {
		require.NoError(t, gsmTime.Schedule(fn, PMSet, 0))
	}
	assert.Equal(t, []uint32{gsm.Hyperframe - 3, 20, 20, 300, 500}, gsmTime.Pending())
}

func TestGSMTimeExecute(t *testing.T) {
	gsmTime := NewGSMTime()
	tdma := NewTDMA()
	require.NoError(t, gsmTime.Schedule(100, PMSet, 0x42))
	require.NoError(t, gsmTime.Schedule(101, RACHSet, 0x43))

	require.NoError(t, gsmTime.Execute(97, tdma))
	assert.True(t, tdma.Empty())
	assert.Equal(t, 2, gsmTime.Len())

	require.NoError(t, gsmTime.Execute(98, tdma))
	assert.Equal(t, 1, gsmTime.Len())
	assert.Equal(t, []Item{Command(OpRxPowerMeas, 0, 1, 0)}, tdma.Pending(ScheduleAhead-ScheduleLatency))

	// a frame was skipped, the missed event is dropped
	require.NoError(t, gsmTime.Execute(150, tdma))
	assert.Equal(t, 0, gsmTime.Len())
	assert.Equal(t, GSMTimeEventCount, gsmTime.Free())
}

func TestGSMTimeWrap(t *testing.T) {
	gsmTime := NewGSMTime()
	tdma := NewTDMA()
	require.NoError(t, gsmTime.Schedule(0, PMSet, 0))

	require.NoError(t, gsmTime.Execute(gsm.Hyperframe-3, tdma))
	assert.Equal(t, 1, gsmTime.Len())
	require.NoError(t, gsmTime.Execute(gsm.Hyperframe-2, tdma))
	assert.Equal(t, 0, gsmTime.Len())
	assert.False(t, tdma.Empty())
}

func TestGSMTimePoolProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gsmTime := NewGSMTime()
		tdma := NewTDMA()
		scheduled := 0
		fn := uint32(0)
		steps := rapid.IntRange(1, 100).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "schedule") {
				err := gsmTime.Schedule(fn+uint32(rapid.IntRange(3, 10).Draw(t, "ahead")), Set{EndSet()}, 0)
				if scheduled == GSMTimeEventCount {
					if !errors.Is(err, ErrBusy) {
						t.Fatalf("expected ErrBusy, got %v", err)
					}
				} else if err != nil {
					t.Fatal(err)
				} else {
					scheduled++
				}
			} else {
				if err := gsmTime.Execute(fn, tdma); err != nil {
					t.Fatal(err)
				}
				fn++
				scheduled = gsmTime.Len()
			}
			if gsmTime.Len()+gsmTime.Free() != GSMTimeEventCount {
				t.Fatalf("slots leaked: %d active, %d free", gsmTime.Len(), gsmTime.Free())
			}
		}
	})
}

func TestMframeSchedule(t *testing.T) {
	mframe := NewMframe()
	tdma := NewTDMA()
	mframe.Enable(TaskBCCHNorm)

	// the BCCH block starts in frame 2 of the 51-multiframe
	require.NoError(t, mframe.Schedule(0, tdma))
	assert.Equal(t, TaskBCCHNorm.Mask(), mframe.Tasks())
	assert.Equal(t, []Item{Command(OpRxNormalBurst, 0, 0, 0)}, tdma.Pending(1))

	r := &recorder{}
	r.run(t, tdma, 2)
	require.Len(t, r.items, 1)
	task, flags := TaskFromP3(r.items[0].p3)
	assert.Equal(t, TaskBCCHNorm, task)
	assert.Equal(t, uint16(0), flags)

	// the new task must wait until the running set is safe
	mframe.Enable(TaskCCCH)
	require.NoError(t, mframe.Schedule(1, tdma))
	assert.Equal(t, TaskBCCHNorm.Mask(), mframe.Tasks())
	require.NoError(t, mframe.Schedule(4, tdma))
	assert.Equal(t, TaskBCCHNorm.Mask()|TaskCCCH.Mask(), mframe.Tasks())

	// disabling is effective immediately
	mframe.Disable(TaskBCCHNorm)
	require.NoError(t, mframe.Schedule(5, tdma))
	assert.Equal(t, TaskCCCH.Mask(), mframe.Tasks())

	mframe.Reset()
	assert.Equal(t, uint32(0), mframe.Tasks())
	assert.Equal(t, uint32(0), mframe.Target())
}

func TestMframeSACCHFlag(t *testing.T) {
	mframe := NewMframe()
	tdma := NewTDMA()
	mframe.SetTasks(TaskSDCCH8_0.Mask())

	// SACCH downlink of SDCCH/8 subchannel 0 starts in frame 32 of the 102-multiframe
	require.NoError(t, mframe.Schedule(30, tdma))
	r := &recorder{}
	r.run(t, tdma, 2)
	require.Len(t, r.items, 1)
	task, flags := TaskFromP3(r.items[0].p3)
	assert.Equal(t, TaskSDCCH8_0, task)
	assert.Equal(t, FlagSACCH, flags)
}

func TestMframeTCHFrames(t *testing.T) {
	mframe := NewMframe()
	tdma := NewTDMA()
	mframe.SetTasks(TaskTCHH0.Mask())

	var ops []Op
	exec := ExecutorFunc(func(item Item, _ uint16) error {
		if item.Phase == Cmd {
			ops = append(ops, item.Op)
		}
		return nil
	})
	for fn := uint32(0); fn < 26; fn++ {
		require.NoError(t, mframe.Schedule(fn, tdma))
		_, err := tdma.Execute(exec)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, len(ops), 13)
	assert.Equal(t, []Op{OpTCH, OpTCHD, OpTCH, OpTCHD}, ops[:4])
	assert.Contains(t, ops, OpTCHA)
}

func TestTaskChanNr(t *testing.T) {
	tt := []struct {
		task     Task
		tn       uint8
		expected gsm.ChanNr
	}{
		{TaskBCCHNorm, 0, 0x80},
		{TaskCCCHComb, 0, 0x90},
		{TaskSDCCH4_2, 0, 0x30},
		{TaskSDCCH8_7, 1, 0x79},
		{TaskTCHFEven, 2, 0x0a},
		{TaskTCHH1, 3, 0x1b},
		{TaskPDTCH, 7, 0xc7},
		{TaskULAllNB, 5, 0x05},
	}
	for _, tc := range tt {
		t.Run(tc.task.String(), func(t *testing.T) {
			assert.Equal(t, tc.expected, TaskChanNr(tc.task, tc.tn))
		})
	}
}
