package lapdm

import (
	"time"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/lapd"
)

// T200 of the entities
const (
	T200ACCH = 2 * time.Second
	T200DCCH = 1 * time.Second
)

// Channel is a logical channel with its two entities: the main dedicated channel (DCCH) and
// the associated control channel (SACCH).
type Channel struct {
	name string
	acch *Entity
	dcch *Entity
}

// NewChannel returns a new channel. Both entities send to the same layer 1 and deliver to the
// same layer 3.
func NewChannel(name string, mode Mode, lower Lower, upper Upper, options ...Option) *Channel {
	acchOptions := append(append([]Option{}, options...), withName(name+"/ACCH"))
	dcchOptions := append(append([]Option{}, options...), withName(name+"/DCCH"))
	s := newSettings(options)
	t200ACCH, t200DCCH := T200ACCH, T200DCCH
	if s.t200ACCH > 0 {
		t200ACCH = s.t200ACCH
	}
	if s.t200DCCH > 0 {
		t200DCCH = s.t200DCCH
	}
	return &Channel{
		name: name,
		acch: NewEntity(mode, t200ACCH, lower, upper, acchOptions...),
		dcch: NewEntity(mode, t200DCCH, lower, upper, dcchOptions...),
	}
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) ACCH() *Entity {
	return c.acch
}

func (c *Channel) DCCH() *Entity {
	return c.dcch
}

// EntityFor returns the entity that handles the given link.
func (c *Channel) EntityFor(linkID gsm.LinkID) *Entity {
	if linkID.SACCH() {
		return c.acch
	}
	return c.dcch
}

func (c *Channel) SetMode(mode Mode) {
	c.dcch.SetMode(mode)
	c.acch.SetMode(mode)
}

func (c *Channel) SetFlags(flags Flags) {
	c.dcch.SetFlags(flags)
	c.acch.SetFlags(flags)
}

// Reset resets both entities.
func (c *Channel) Reset() {
	c.dcch.Reset()
	c.acch.Reset()
}

// Poll handles the timers of both entities.
func (c *Channel) Poll(now time.Time) {
	c.dcch.Poll(now)
	c.acch.Poll(now)
}

// NextDeadline returns the earliest timer expiry of both entities.
func (c *Channel) NextDeadline() (time.Time, bool) {
	dcch, dcchOK := c.dcch.NextDeadline()
	acch, acchOK := c.acch.NextDeadline()
	switch {
	case dcchOK && acchOK:
		if acch.Before(dcch) {
			return acch, true
		}
		return dcch, true
	case dcchOK:
		return dcch, true
	default:
		return acch, acchOK
	}
}

// PHDataInd passes a received MAC block to the entity of the link.
func (c *Channel) PHDataInd(data []byte, chanNr gsm.ChanNr, linkID gsm.LinkID) error {
	return c.EntityFor(linkID).PHDataInd(data, chanNr, linkID)
}

// ChannelRequest sends an access burst through the main channel.
func (c *Channel) ChannelRequest(req RachRequest) error {
	return c.dcch.ChannelRequest(req)
}

func (c *Channel) Establish(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	return c.EntityFor(linkID).Establish(chanNr, linkID, l3)
}

func (c *Channel) Data(linkID gsm.LinkID, l3 []byte) error {
	return c.EntityFor(linkID).Data(linkID, l3)
}

func (c *Channel) UnitData(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	return c.EntityFor(linkID).UnitData(chanNr, linkID, l3)
}

func (c *Channel) Suspend(linkID gsm.LinkID) error {
	return c.EntityFor(linkID).Suspend(linkID)
}

func (c *Channel) Resume(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	return c.EntityFor(linkID).Resume(chanNr, linkID, l3)
}

func (c *Channel) Reconnect(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	return c.EntityFor(linkID).Reconnect(chanNr, linkID, l3)
}

func (c *Channel) Release(linkID gsm.LinkID, mode lapd.ReleaseMode) error {
	return c.EntityFor(linkID).Release(linkID, mode)
}
