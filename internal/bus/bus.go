package bus

import (
	"context"
	"errors"
	"sync"

	"vigil/internal/model"
)

// ErrClosed is returned by Put once shutdown has been signalled.
var ErrClosed = errors.New("frame bus closed")

// Bus is the single bounded queue shared by every stream worker. Producers
// block while it is full; nothing is ever dropped. After Close, producers
// are refused but the consumer may keep draining frames already enqueued.
type Bus struct {
	ch   chan model.Frame
	done chan struct{}
	once sync.Once
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 32
	}
	return &Bus{
		ch:   make(chan model.Frame, capacity),
		done: make(chan struct{}),
	}
}

// Put enqueues one frame, blocking while the bus is full. It fails with
// ErrClosed once Close has been called and with the context error when the
// caller's context ends first.
func (b *Bus) Put(ctx context.Context, frame model.Frame) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- frame:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until a frame is available. After Close it keeps returning
// buffered frames until the bus is drained, then reports end-of-stream
// with ok=false.
func (b *Bus) Get() (model.Frame, bool) {
	select {
	case frame := <-b.ch:
		return frame, true
	case <-b.done:
		select {
		case frame := <-b.ch:
			return frame, true
		default:
			return model.Frame{}, false
		}
	}
}

// Close stops accepting frames from producers. Safe to call more than once.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}

// Len reports how many frames are currently buffered.
func (b *Bus) Len() int {
	return len(b.ch)
}
