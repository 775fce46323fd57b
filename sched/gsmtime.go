package sched

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ftl/gsm-ms/gsm"
)

// Timing of the GSM time events
const (
	GSMTimeEventCount = 16
	ScheduleAhead     = 2 // frames between arming a set and its first frame
	ScheduleLatency   = 1 // frames the radio needs to be programmed in advance
)

// ErrBusy is returned when all GSM time event slots are in use.
var ErrBusy = errors.New("no free gsm time event")

type gsmTimeEvent struct {
	fn  uint32
	set Set
	p3  uint16
}

// GSMTime binds sets to absolute frame numbers. The events are kept in a fixed pool, the active events
// are sorted by their frame number.
type GSMTime struct {
	mutex  sync.Mutex
	events [GSMTimeEventCount]gsmTimeEvent
	active []int
	free   []int
	logger *log.Logger
}

// NewGSMTime returns an event scheduler with all slots free.
func NewGSMTime() *GSMTime {
	result := &GSMTime{
		active: make([]int, 0, GSMTimeEventCount),
		free:   make([]int, 0, GSMTimeEventCount),
		logger: log.New(io.Discard),
	}
	result.Reset()
	return result
}

// WithLogger sets the logger of the event scheduler.
func (g *GSMTime) WithLogger(logger *log.Logger) *GSMTime {
	g.logger = logger
	return g
}

// Schedule binds the set to the frame with the given number.
func (g *GSMTime) Schedule(fn uint32, set Set, p3 uint16) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.free) == 0 {
		return fmt.Errorf("%w for fn %d", ErrBusy, fn)
	}
	slot := g.free[len(g.free)-1]
	g.free = g.free[:len(g.free)-1]
	g.events[slot] = gsmTimeEvent{fn: fn % gsm.Hyperframe, set: set, p3: p3}

	position := len(g.active)
	for i, other := range g.active {
		if gsm.FNCompare(g.events[other].fn, g.events[slot].fn) > 0 {
			position = i
			break
		}
	}
	g.active = append(g.active, 0)
	copy(g.active[position+1:], g.active[position:])
	g.active[position] = slot

	g.logger.Debug("gsm time event scheduled", "fn", fn, "slot", slot)
	return nil
}

// Execute arms every event that is due ScheduleAhead frames after the current frame into the TDMA
// scheduler and returns its slot to the pool.
func (g *GSMTime) Execute(currentFN uint32, tdma *TDMA) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	due := gsm.FNAdd(currentFN, ScheduleAhead)
	var errs []error
	for len(g.active) > 0 {
		slot := g.active[0]
		event := g.events[slot]
		if gsm.FNCompare(event.fn, due) > 0 {
			break
		}
		copy(g.active, g.active[1:])
		g.active = g.active[:len(g.active)-1]
		g.free = append(g.free, slot)
		g.events[slot] = gsmTimeEvent{}

		if event.fn != due {
			g.logger.Warn("gsm time event missed", "fn", event.fn, "current", currentFN)
			continue
		}
		_, err := tdma.ScheduleSet(ScheduleAhead-ScheduleLatency, event.set, event.p3)
		if err != nil {
			errs = append(errs, fmt.Errorf("fn %d: %w", event.fn, err))
		}
	}
	return errors.Join(errs...)
}

// Reset drops all pending events.
func (g *GSMTime) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.active = g.active[:0]
	g.free = g.free[:0]
	for i := GSMTimeEventCount - 1; i >= 0; i-- {
		g.events[i] = gsmTimeEvent{}
		g.free = append(g.free, i)
	}
}

// Len returns the number of pending events.
func (g *GSMTime) Len() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.active)
}

// Free returns the number of free slots.
func (g *GSMTime) Free() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.free)
}

// Pending returns the frame numbers of the pending events in execution order.
func (g *GSMTime) Pending() []uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	result := make([]uint32, len(g.active))
	for i, slot := range g.active {
		result[i] = g.events[slot].fn
	}
	return result
}
