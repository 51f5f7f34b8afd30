package concurrency

import (
	"context"
	"sync/atomic"

	"github.com/Ipiano/gdb-mcp/pkg/container"
)

// UnboundedChan is a channel with an unlimited internal buffer: writes to the
// In channel block only briefly, with data buffered indefinitely if nobody is
// reading from the Out channel. A dedicated goroutine moves data between the
// In channel, the buffer, and the Out channel, and exits when the associated
// context is canceled.
//
// Multiple writers and readers are supported.
//
// Closing the In channel signals that no more data will be written; buffered
// data continues to be delivered to the Out channel until the buffer drains
// (unless the context is canceled first), after which Out is closed.
type UnboundedChan[T any] struct {
	In     chan<- T // channel for writing data
	Out    <-chan T // channel for reading data
	buf    *container.RingBuffer[T]
	bufLen atomic.Int64
}

// NewUnboundedChan creates a new unbounded channel whose In and Out channels
// are unbuffered.
func NewUnboundedChan[T any](ctx context.Context) *UnboundedChan[T] {
	in := make(chan T)
	out := make(chan T)

	ch := &UnboundedChan[T]{
		In:  in,
		Out: out,
		buf: container.NewRingBuffer[T](),
	}

	go ch.pump(ctx, in, out)

	return ch
}

// BufLen returns the number of buffered elements. The value is approximate
// under concurrent use.
func (ch *UnboundedChan[T]) BufLen() int64 {
	return ch.bufLen.Load()
}

func (ch *UnboundedChan[T]) pump(ctx context.Context, in <-chan T, out chan<- T) {
	defer close(out)

	for {
		// Buffer empty: wait for input.
		if ch.buf.Empty() {
			if in == nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case val, isOpen := <-in:
				if !isOpen {
					return
				}
				ch.push(val)
			}
		}

		// Buffer non-empty: deliver the oldest item while accepting new input.
		oldest, _ := ch.buf.Peek()
		select {
		case <-ctx.Done():
			return
		case val, isOpen := <-in:
			if !isOpen {
				// Keep draining the buffer, but stop reading from the
				// closed input channel.
				in = nil
			} else {
				ch.push(val)
			}
		case out <- oldest:
			_, _ = ch.buf.Pop()
			ch.bufLen.Add(-1)
		}
	}
}

func (ch *UnboundedChan[T]) push(val T) {
	ch.buf.Push(val)
	ch.bufLen.Add(1)
}
