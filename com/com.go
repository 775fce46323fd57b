/*
The package com implements the link between layer 2/3 and layer 1. The link serializes requests to
layer 1, correlates the confirmations with their requests, and dispatches everything else as
indication.
*/
package com

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ftl/gsm-ms/l1ctl"
)

const (
	readBufferSize      = 1024
	sendingQueueLength  = 64
	sendingQueueTimeout = 500 * time.Millisecond
)

var (
	ErrClosed       = errors.New("link closed")
	ErrQueueTimeout = errors.New("sending queue timeout")
)

// Option configures a Link.
type Option func(*Link)

// WithFraming sets the framing of the byte stream. The default is LengthPrefixed.
func WithFraming(framing Framing) Option {
	return func(l *Link) {
		l.framing = framing
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// NewWithTrace creates a new Link that traces all communications to a second writer.
func NewWithTrace(device io.ReadWriter, tracer io.Writer, options ...Option) *Link {
	return New(device, append([]Option{func(l *Link) { l.tracer = tracer }}, options...)...)
}

// New creates a new Link using the given io.ReadWriter to communicate with layer 1.
func New(device io.ReadWriter, options ...Option) *Link {
	commands := make(chan command)
	sends := make(chan []byte, sendingQueueLength)
	result := &Link{
		commands:    commands,
		sends:       sends,
		closed:      make(chan struct{}),
		framing:     LengthPrefixed{},
		logger:      log.New(io.Discard),
		indications: make(map[l1ctl.MsgType]func([]byte)),
	}
	for _, option := range options {
		option(result)
	}
	frames := readLoop(device, result.framing, result.logger)

	go func() {
		result.trace("****\n* SESSION START\n****\n")
		defer result.trace("****\n* SESSION END\n****\n")
		defer close(result.closed)

		var commandCancelled <-chan struct{}
		var activeCommand *command
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()

		for {
			select {
			case frame, valid := <-frames:
				if !valid {
					if activeCommand != nil {
						activeCommand.Finish(ErrClosed)
					}
					return
				}
				result.tracef("rx:  %X\n--\n", frame)

				hdr, err := l1ctl.ParseHdr(frame)
				if err != nil {
					result.logger.Warn("dropping invalid message", "err", err)
					break
				}
				if activeCommand != nil && activeCommand.confirm == hdr.MsgType {
					activeCommand.AddFrame(hdr, frame)
					if activeCommand.Complete() {
						commandCancelled = nil
						activeCommand = nil
					}
					break
				}
				result.indicate(hdr, frame)
			case msg := <-sends:
				result.write(device, msg)
			case <-commandCancelled:
				commandCancelled = nil
				activeCommand = nil
			case <-tick.C:
			}
			if activeCommand == nil {
				select {
				case cmd := <-commands:
					err := result.write(device, cmd.request)
					if err != nil {
						cmd.Finish(err)
						break
					}
					if cmd.confirm == l1ctl.MsgNone {
						cmd.Finish(nil)
						break
					}
					commandCancelled = cmd.cancelled
					activeCommand = &cmd
				default:
				}
			}
		}
	}()

	return result
}

// Link allows to communicate with layer 1 using L1CTL messages.
type Link struct {
	commands chan<- command
	sends    chan<- []byte
	closed   chan struct{}
	framing  Framing
	tracer   io.Writer
	logger   *log.Logger

	indicationsLock sync.RWMutex
	indications     map[l1ctl.MsgType]func([]byte)
	unhandled       func([]byte)
}

func readLoop(r io.Reader, framing Framing, logger *log.Logger) <-chan []byte {
	frames := make(chan []byte, 1)
	go func() {
		defer close(frames)
		buf := make([]byte, readBufferSize)
		pending := make([]byte, 0, readBufferSize)
		for {
			n, err := r.Read(buf)
			if err != nil {
				if err != io.EOF {
					logger.Error("cannot read from layer 1", "err", err)
				}
				return
			}

			pending = append(pending, buf[0:n]...)
			for {
				frame, consumed := framing.Decode(pending)
				if consumed == 0 {
					break
				}
				pending = pending[consumed:]
				if frame != nil {
					frames <- frame
				}
			}
		}
	}()
	return frames
}

// Closed reports if the link to layer 1 is gone.
func (l *Link) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// WaitUntilClosed blocks until the link to layer 1 is gone.
func (l *Link) WaitUntilClosed() {
	<-l.closed
}

// AddIndication registers the handler for all messages of the given type that do not confirm an
// active request. Handlers are called one after another on the link's goroutine with the complete
// message, so they must not wait for a request on the same link. Send is fine.
func (l *Link) AddIndication(msgType l1ctl.MsgType, handler func(msg []byte)) {
	l.indicationsLock.Lock()
	defer l.indicationsLock.Unlock()
	l.indications[msgType] = handler
}

// SetUnhandled registers the handler for all messages without a specific indication handler.
func (l *Link) SetUnhandled(handler func(msg []byte)) {
	l.indicationsLock.Lock()
	defer l.indicationsLock.Unlock()
	l.unhandled = handler
}

func (l *Link) indicate(hdr l1ctl.Hdr, frame []byte) {
	l.indicationsLock.RLock()
	handler, ok := l.indications[hdr.MsgType]
	if !ok {
		handler = l.unhandled
	}
	l.indicationsLock.RUnlock()

	if handler == nil {
		l.logger.Debug("unhandled message", "type", hdr.MsgType)
		return
	}
	handler(frame)
}

// Request sends the given message and waits for its confirmations. Messages without a
// confirmation return as soon as they are written.
func (l *Link) Request(ctx context.Context, msg l1ctl.Message) ([]l1ctl.Message, error) {
	confirm, _ := l1ctl.ConfirmFor(msg.MsgType())
	cmd := command{
		request:   l1ctl.Marshal(msg, 0),
		confirm:   confirm,
		response:  make(chan []l1ctl.Message, 1),
		err:       make(chan error, 1),
		cancelled: ctx.Done(),
		completed: make(chan struct{}),
	}

	select {
	case l.commands <- cmd:
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(sendingQueueTimeout):
		return nil, fmt.Errorf("%s: %w", msg.MsgType(), ErrQueueTimeout)
	}

	select {
	case response := <-cmd.response:
		return response, nil
	case err := <-cmd.err:
		return nil, err
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send queues the given message without waiting for any confirmation. It does not wait behind an
// active request and can be used from within indication handlers. Write errors are only logged.
func (l *Link) Send(msg l1ctl.Message) error {
	return l.SendRaw(l1ctl.Marshal(msg, 0))
}

// SendRaw queues an already marshalled message.
func (l *Link) SendRaw(msg []byte) error {
	if l.Closed() {
		return ErrClosed
	}
	select {
	case l.sends <- msg:
		return nil
	case <-l.closed:
		return ErrClosed
	case <-time.After(sendingQueueTimeout):
		return ErrQueueTimeout
	}
}

func (l *Link) write(device io.Writer, msg []byte) error {
	txbytes, err := l.framing.Encode(msg)
	if err != nil {
		return err
	}
	l.tracef("tx:  %X\n--\n", msg)
	_, err = device.Write(txbytes)
	if err != nil {
		l.logger.Error("cannot write to layer 1", "err", err)
	}
	return err
}

func (l *Link) trace(args ...any) {
	if l.tracer == nil {
		return
	}
	fmt.Fprint(l.tracer, args...)
}

func (l *Link) tracef(format string, args ...any) {
	if l.tracer == nil {
		return
	}
	fmt.Fprintf(l.tracer, format, args...)
}

type command struct {
	messages  []l1ctl.Message
	request   []byte
	confirm   l1ctl.MsgType
	response  chan []l1ctl.Message
	err       chan error
	cancelled <-chan struct{}
	completed chan struct{}
}

func (c *command) AddFrame(hdr l1ctl.Hdr, frame []byte) {
	if c.Complete() {
		return
	}

	_, msg, err := l1ctl.Parse(frame)
	if err != nil {
		c.Finish(err)
		return
	}
	c.messages = append(c.messages, msg)
	if l1ctl.Final(hdr) {
		c.response <- c.messages
		close(c.completed)
	}
}

// Finish completes the command with the given error, or with no response at all if err is nil.
func (c *command) Finish(err error) {
	if c.Complete() {
		return
	}
	if err != nil {
		c.err <- err
	} else {
		c.response <- nil
	}
	close(c.completed)
}

func (c *command) Complete() bool {
	select {
	case <-c.cancelled:
		return true
	case <-c.completed:
		return true
	default:
		return false
	}
}
