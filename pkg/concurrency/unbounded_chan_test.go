package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedChanDeliversInOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := NewUnboundedChan[int](ctx)

	const count = 500
	go func() {
		for i := 0; i < count; i++ {
			ch.In <- i
		}
		close(ch.In)
	}()

	received := 0
	for v := range ch.Out {
		require.Equal(t, received, v)
		received++
	}
	assert.Equal(t, count, received)
}

func TestUnboundedChanWritesDoNotBlock(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := NewUnboundedChan[int](ctx)

	// Nobody is reading; all writes must still complete promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			ch.In <- i
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writes to unbounded channel blocked")
	}

	// Everything written is still readable.
	for i := 0; i < 100; i++ {
		select {
		case v := <-ch.Out:
			require.Equal(t, i, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for element %d", i)
		}
	}
}

func TestUnboundedChanStopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	ch := NewUnboundedChan[int](ctx)
	ch.In <- 1
	cancel()

	// Out is eventually closed without requiring the input to be closed.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, isOpen := <-ch.Out:
			if !isOpen {
				return
			}
		case <-deadline:
			t.Fatal("Out channel was not closed after context cancellation")
		}
	}
}

func TestAutoResetEvent(t *testing.T) {
	t.Parallel()

	t.Run("initial state", func(t *testing.T) {
		e := NewAutoResetEvent(true)
		select {
		case <-e.WaitChannel():
		default:
			t.Fatal("event created set should be immediately waitable")
		}

		// The wait consumed the signal.
		select {
		case <-e.WaitChannel():
			t.Fatal("signal was not consumed by the first wait")
		default:
		}
	})

	t.Run("set releases one waiter", func(t *testing.T) {
		e := NewAutoResetEvent(false)
		e.Set()
		e.Set() // coalesces with the first

		<-e.WaitChannel()
		select {
		case <-e.WaitChannel():
			t.Fatal("multiple Set calls must coalesce into one signal")
		default:
		}
	})

	t.Run("clear removes pending signal", func(t *testing.T) {
		e := NewAutoResetEvent(true)
		e.Clear()
		select {
		case <-e.WaitChannel():
			t.Fatal("Clear did not consume the pending signal")
		default:
		}
	})
}
