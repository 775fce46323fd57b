package sched

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Dimensions of the TDMA scheduler
const (
	TDMASchedSize       = 25 // number of frames the scheduler can look ahead
	TDMASchedBucketSize = 16 // maximum number of items per frame
)

// Debug enables the detection of programming errors, like double booked items, which then cause a panic.
var Debug = false

var (
	// ErrBucketFull is returned when a frame cannot take any more items.
	ErrBucketFull = errors.New("tdma bucket full")
	// ErrSetTooLong is returned when a set does not fit into the scheduler's look ahead.
	ErrSetTooLong = errors.New("set exceeds the scheduling window")
)

type entry struct {
	item Item
	p3   uint16
}

type bucket struct {
	entries [TDMASchedBucketSize]entry
	count   int
}

func (b *bucket) add(e entry) {
	if Debug {
		for _, other := range b.entries[:b.count] {
			if other.item.Op == e.item.Op && other.item.Phase == e.item.Phase && other.item.Offset == e.item.Offset {
				panic(fmt.Sprintf("tdma double booking of %s", e.item))
			}
		}
	}
	b.entries[b.count] = e
	b.count++
}

// TDMA is a ring of buckets, one per TDMA frame. Execute runs the items of the current frame and
// advances to the next frame.
type TDMA struct {
	mutex   sync.Mutex
	buckets [TDMASchedSize]bucket
	current int
	logger  *log.Logger
}

// NewTDMA returns an empty TDMA scheduler.
func NewTDMA() *TDMA {
	return &TDMA{
		logger: log.New(io.Discard),
	}
}

// WithLogger sets the logger of the scheduler.
func (t *TDMA) WithLogger(logger *log.Logger) *TDMA {
	t.logger = logger
	return t
}

func (t *TDMA) bucketIndex(frameOffset int) int {
	return ((t.current+frameOffset)%TDMASchedSize + TDMASchedSize) % TDMASchedSize
}

// ScheduleSet arms the given set to start frameOffset frames from now. The items are only armed if the
// whole set fits. It returns the number of frames the set spans.
func (t *TDMA) ScheduleSet(frameOffset int, set Set, p3 uint16) (int, error) {
	frames := set.Frames()
	if frameOffset < 0 || frameOffset+frames > TDMASchedSize {
		return 0, fmt.Errorf("%w: %d frames at offset %d", ErrSetTooLong, frames, frameOffset)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	var required [TDMASchedSize]int
	t.walkSet(frameOffset, set, func(index int, _ Item) {
		required[index]++
	})
	for i, count := range required {
		if count > 0 && t.buckets[i].count+count > TDMASchedBucketSize {
			t.logger.Warn("tdma bucket overflow", "bucket", i, "items", t.buckets[i].count+count)
			return 0, fmt.Errorf("%w: %d items required", ErrBucketFull, t.buckets[i].count+count)
		}
	}

	t.walkSet(frameOffset, set, func(index int, item Item) {
		t.buckets[index].add(entry{item: item, p3: p3})
	})
	return frames, nil
}

func (t *TDMA) walkSet(frameOffset int, set Set, f func(int, Item)) {
	frame := frameOffset
	for _, item := range set {
		switch {
		case item.endOfSet():
			return
		case item.endOfFrame():
			frame++
		default:
			f(t.bucketIndex(frame), item)
		}
	}
}

// ScheduleItem arms a single item frameOffset frames from now.
func (t *TDMA) ScheduleItem(frameOffset int, item Item, p3 uint16) error {
	_, err := t.ScheduleSet(frameOffset, Set{item, EndSet()}, p3)
	return err
}

// Execute runs all items of the current frame in ascending order of their offset and advances the
// scheduler to the next frame. Items may schedule further sets while they are executed. The errors of
// the executor are collected, all items are executed regardless. It returns the number of executed items.
func (t *TDMA) Execute(exec Executor) (int, error) {
	t.mutex.Lock()
	b := &t.buckets[t.current]
	entries := make([]entry, b.count)
	copy(entries, b.entries[:b.count])
	b.count = 0
	t.current = (t.current + 1) % TDMASchedSize
	t.mutex.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].item.Offset < entries[j].item.Offset
	})

	var errs []error
	for _, e := range entries {
		err := exec.Execute(e.item, e.p3)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.item, err))
		}
	}
	return len(entries), errors.Join(errs...)
}

// Flush drops all scheduled items but keeps the current position.
func (t *TDMA) Flush() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for i := range t.buckets {
		t.buckets[i].count = 0
	}
}

// Reset drops all scheduled items and rewinds the scheduler.
func (t *TDMA) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for i := range t.buckets {
		t.buckets[i].count = 0
	}
	t.current = 0
}

// Empty reports whether no item is scheduled.
func (t *TDMA) Empty() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for _, b := range t.buckets {
		if b.count > 0 {
			return false
		}
	}
	return true
}

// Delay returns the number of frames until the last scheduled item is executed, or -1 if nothing is scheduled.
func (t *TDMA) Delay() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for offset := TDMASchedSize - 1; offset >= 0; offset-- {
		if t.buckets[t.bucketIndex(offset)].count > 0 {
			return offset
		}
	}
	return -1
}

// Pending returns the items scheduled frameOffset frames from now in execution order.
func (t *TDMA) Pending(frameOffset int) []Item {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	b := &t.buckets[t.bucketIndex(frameOffset)]
	result := make([]Item, b.count)
	for i, e := range b.entries[:b.count] {
		result[i] = e.item
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Offset < result[j].Offset
	})
	return result
}
