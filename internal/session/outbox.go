package session

import (
	"fmt"
	"sync"
)

// Outbox is a bounded queue of encoded frames waiting to be written to one
// live connection. A transport goroutine drains Frames.
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given session ID.
//
// Postcondition: Returns an Outbox with an open frames channel of at least one slot.
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, bufferSize),
	}
}

// Push enqueues a frame without blocking.
//
// Postcondition: The frame is queued, or an error is returned if the outbox is
// closed or full.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.id)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.id)
	}
}

// Frames returns the read side of the queue. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the queue. Calling Close more than once is safe.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
