package com

import (
	"io"
	"sync"
	"time"
)

// NewInMemory returns a device that stands in for layer 1 in tests.
func NewInMemory() *InMemory {
	return &InMemory{
		writeSignal: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

// InMemory is an io.ReadWriter that reads what was prepared and records what was written.
type InMemory struct {
	lock           sync.Mutex
	readBuffer     []byte
	writeBuffer    []byte
	writeSignal    chan struct{}
	closed         chan struct{}
	closeWhenEmpty bool
}

func (rw *InMemory) Close() error {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	rw.close()
	return nil
}

func (rw *InMemory) close() {
	select {
	case <-rw.closed:
	default:
		close(rw.closed)
	}
}

func (rw *InMemory) WaitUntilClosed() {
	<-rw.closed
}

func (rw *InMemory) Read(p []byte) (int, error) {
	for {
		rw.lock.Lock()
		select {
		case <-rw.closed:
			rw.lock.Unlock()
			return 0, io.EOF
		default:
		}
		if len(rw.readBuffer) > 0 {
			n := copy(p, rw.readBuffer)
			rw.readBuffer = rw.readBuffer[n:]
			if rw.closeWhenEmpty && len(rw.readBuffer) == 0 {
				rw.close()
			}
			rw.lock.Unlock()
			return n, nil
		}
		rw.lock.Unlock()

		select {
		case <-rw.closed:
			return 0, io.EOF
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// PrepareRead appends the given bytes to what the next reads return.
func (rw *InMemory) PrepareRead(p []byte) {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	rw.readBuffer = append(rw.readBuffer, p...)
}

// PrepareMessages frames the given messages and appends them to what the next reads return.
func (rw *InMemory) PrepareMessages(framing Framing, msgs ...[]byte) error {
	for _, msg := range msgs {
		frame, err := framing.Encode(msg)
		if err != nil {
			return err
		}
		rw.PrepareRead(frame)
	}
	return nil
}

func (rw *InMemory) IsReadEmpty() bool {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	return len(rw.readBuffer) == 0
}

// CloseWhenEmpty closes the device as soon as everything prepared was read.
func (rw *InMemory) CloseWhenEmpty(value bool) {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	rw.closeWhenEmpty = value
	if value && len(rw.readBuffer) == 0 {
		rw.close()
	}
}

func (rw *InMemory) Write(p []byte) (int, error) {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	select {
	case <-rw.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	rw.writeBuffer = append(rw.writeBuffer, p...)
	select {
	case rw.writeSignal <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (rw *InMemory) Written() []byte {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	return append([]byte{}, rw.writeBuffer...)
}

// WrittenMessages splits everything written so far into messages.
func (rw *InMemory) WrittenMessages(framing Framing) [][]byte {
	var result [][]byte
	written := rw.Written()
	for {
		msg, consumed := framing.Decode(written)
		if consumed == 0 {
			return result
		}
		written = written[consumed:]
		if msg != nil {
			result = append(result, msg)
		}
	}
}

func (rw *InMemory) ClearWrite() {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	rw.writeBuffer = nil
}

// WaitUntilWritten blocks until something was written since the last call.
func (rw *InMemory) WaitUntilWritten() {
	<-rw.writeSignal
}
