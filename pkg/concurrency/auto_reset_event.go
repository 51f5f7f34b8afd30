// Copyright (c) Microsoft Corporation. All rights reserved.

package concurrency

// AutoResetEvent is a signaling primitive that releases at most one waiter
// per Set() call. Waiting on the event consumes the signal.
type AutoResetEvent struct {
	channel chan struct{}
}

func NewAutoResetEvent(initialState bool) *AutoResetEvent {
	e := &AutoResetEvent{
		channel: make(chan struct{}, 1),
	}
	if initialState {
		e.Set()
	}
	return e
}

// WaitChannel returns the channel to receive from when waiting for the event.
// A successful receive consumes the signal.
func (e *AutoResetEvent) WaitChannel() <-chan struct{} {
	return e.channel
}

// Set signals the event. Non-blocking; if the event is already signaled,
// the call has no effect.
func (e *AutoResetEvent) Set() {
	select {
	case e.channel <- struct{}{}:
	default:
	}
}

// Clear consumes a pending signal, if any. Non-blocking.
func (e *AutoResetEvent) Clear() {
	select {
	case <-e.channel:
	default:
	}
}
