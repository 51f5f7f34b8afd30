// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/Ipiano/gdb-mcp/pkg/concurrency"
)

const defaultInterruptTimeout = 5 * time.Second

// submitOutcome is the terminal result of one submitted command.
type submitOutcome struct {
	result  Record
	records []Record
	err     error
}

// pendingCommand tracks one in-flight command awaiting its token-matched
// result record. Output records observed while the command is pending are
// accumulated so they can be attributed to it.
type pendingCommand struct {
	token   uint64
	records []Record
	outcome chan submitOutcome

	// expired marks a command whose caller already gave up (timeout). The
	// entry stays in the table so the late-arriving result is recognized and
	// discarded instead of being misattributed.
	expired bool
}

// SubmitRequest describes one command to run against the debugger.
type SubmitRequest struct {
	// Command is the raw command text, MI or CLI form.
	Command string

	// Timeout bounds the wait for the result record. Zero means wait until
	// the context is done or the transport dies.
	Timeout time.Duration

	// RequirePaused rejects the command with ErrInvalidState unless the
	// inferior is currently paused or not yet started.
	RequirePaused bool
}

// SubmitResponse carries the result record and the output attributed to the
// command.
type SubmitResponse struct {
	Result  Record
	Records []Record
}

// Dispatcher owns the read loop over a Transport, correlates token-tagged
// result records to their waiting callers, feeds exec-async records to the
// session state machine, and buffers everything else as notifications.
type Dispatcher struct {
	transport Transport
	session   *session
	log       logr.Logger
	ctx       context.Context

	tokenCounter atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCommand
	closed  bool

	// stopObserved fires each time an exec-async record moves the inferior
	// out of StateRunning; Interrupt waits on it.
	stopObserved *concurrency.AutoResetEvent

	// notifications buffers records not attributable to any pending command
	// (notify-async, status-async, stray streams) without ever blocking the
	// read loop.
	notifications *concurrency.UnboundedChan[Record]

	loopDone chan struct{}

	interruptTimeout time.Duration
}

// NewDispatcher starts the read loop over the given transport. The context
// bounds the notification buffer lifetime.
func NewDispatcher(ctx context.Context, transport Transport, sess *session, log logr.Logger) *Dispatcher {
	d := &Dispatcher{
		transport:        transport,
		session:          sess,
		log:              log,
		ctx:              ctx,
		pending:          make(map[uint64]*pendingCommand),
		stopObserved:     concurrency.NewAutoResetEvent(false),
		notifications:    concurrency.NewUnboundedChan[Record](ctx),
		loopDone:         make(chan struct{}),
		interruptTimeout: defaultInterruptTimeout,
	}
	go d.readLoop()
	return d
}

// Notifications returns the channel of unsolicited records. It is closed when
// the dispatcher's context ends.
func (d *Dispatcher) Notifications() <-chan Record {
	return d.notifications.Out
}

// Done returns a channel closed when the read loop has exited (transport
// output fully drained).
func (d *Dispatcher) Done() <-chan struct{} {
	return d.loopDone
}

// readLoop consumes transport lines until the channel closes, routing each
// parsed record. On exit it marks the session terminated and fails any
// commands still pending.
func (d *Dispatcher) readLoop() {
	for line := range d.transport.Lines() {
		if line.FromStderr {
			// GDB's own stderr chatter is not MI; surface it as a log
			// stream record so pending commands still capture it.
			d.route(Record{Kind: RecordLogStream, Payload: StringValue(line.Text)})
			continue
		}
		rec := ParseLine(line.Text)
		if rec.Kind == RecordUnknown {
			// Prompt and blank lines are pacing, not data.
			if raw := rec.Payload.Str(); raw == "" || strings.HasPrefix(raw, "(gdb)") {
				continue
			}
		}
		d.route(rec)
	}

	d.session.markTerminated()

	d.mu.Lock()
	d.closed = true
	abandoned := make([]*pendingCommand, 0, len(d.pending))
	for _, pc := range d.pending {
		abandoned = append(abandoned, pc)
	}
	d.pending = make(map[uint64]*pendingCommand)
	d.mu.Unlock()

	for _, pc := range abandoned {
		pc.outcome <- submitOutcome{err: ErrTransportClosed}
	}
	// Wake any interrupt waiting for a stop that will never come.
	d.stopObserved.Set()

	close(d.loopDone)
}

func (d *Dispatcher) route(rec Record) {
	if rec.Kind == RecordExecAsync {
		if d.session.observeExecAsync(rec) {
			d.stopObserved.Set()
		}
	}

	d.mu.Lock()

	if rec.Kind == RecordResult && rec.HasToken {
		pc, ok := d.pending[rec.Token]
		if ok {
			delete(d.pending, rec.Token)
			expired := pc.expired
			records := pc.records
			d.mu.Unlock()

			if expired {
				d.log.V(1).Info("discarding result for expired command", "token", rec.Token, "class", rec.Class)
				return
			}
			pc.outcome <- submitOutcome{result: rec, records: records}
			return
		}
		d.mu.Unlock()
		d.log.V(1).Info("result record with unknown token", "token", rec.Token, "class", rec.Class)
		return
	}

	// Attribute output to every live pending command: MI gives no token on
	// stream or async records, so the command in flight gets them all.
	attributed := false
	for _, pc := range d.pending {
		if !pc.expired {
			pc.records = append(pc.records, rec)
			attributed = true
		}
	}
	d.mu.Unlock()

	switch rec.Kind {
	case RecordExecAsync, RecordNotifyAsync, RecordStatusAsync:
		d.notify(rec)
	default:
		if !attributed && rec.Kind.IsStream() {
			d.notify(rec)
		}
	}
}

// notify hands a record to the notification buffer unless the dispatcher's
// context is already gone (the buffer pump stops accepting input then).
func (d *Dispatcher) notify(rec Record) {
	select {
	case d.notifications.In <- rec:
	case <-d.ctx.Done():
	}
}

// Submit runs one command and waits for its token-matched result. On timeout
// the pending entry is left behind, marked expired, so the eventual late
// result is discarded rather than delivered to a future caller.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if req.RequirePaused {
		if state := d.session.currentState(); state == StateRunning || state == StateTerminated {
			return SubmitResponse{}, fmt.Errorf("%w: command %q requires a paused program (state is %s)", ErrInvalidState, req.Command, state)
		}
	}

	token := d.tokenCounter.Add(1)
	pc := &pendingCommand{
		token:   token,
		outcome: make(chan submitOutcome, 1),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return SubmitResponse{}, ErrTransportClosed
	}
	d.pending[token] = pc
	d.mu.Unlock()

	wire := RenderCommand(req.Command, token)
	d.log.V(1).Info("submitting command", "token", token, "command", req.Command)

	if writeErr := d.transport.WriteLine(wire); writeErr != nil {
		d.mu.Lock()
		delete(d.pending, token)
		d.mu.Unlock()
		return SubmitResponse{}, writeErr
	}

	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case outcome := <-pc.outcome:
		if outcome.err != nil {
			return SubmitResponse{}, outcome.err
		}
		return SubmitResponse{Result: outcome.result, Records: outcome.records}, nil

	case <-timeoutCh:
		return SubmitResponse{}, d.expire(pc, fmt.Errorf("%w: no result for %q within %v", ErrCommandTimeout, req.Command, req.Timeout))

	case <-ctx.Done():
		return SubmitResponse{}, d.expire(pc, ctx.Err())
	}
}

// expire marks a pending command abandoned. If the result raced in before the
// mutex was taken, the buffered outcome is consumed and dropped.
func (d *Dispatcher) expire(pc *pendingCommand, cause error) error {
	d.mu.Lock()
	if _, stillPending := d.pending[pc.token]; stillPending {
		pc.expired = true
		pc.records = nil
		d.mu.Unlock()
		return cause
	}
	d.mu.Unlock()

	// Result was already routed; drain the buffered outcome so nothing leaks.
	select {
	case outcome := <-pc.outcome:
		if outcome.err != nil {
			return outcome.err
		}
		d.log.V(1).Info("result arrived while expiring command", "token", pc.token)
		return cause
	default:
		return cause
	}
}

// Interrupt sends SIGINT to the debugger and waits until a stop is observed
// on the wire. Returns immediately when the inferior is not running.
func (d *Dispatcher) Interrupt(ctx context.Context) error {
	if d.session.currentState() != StateRunning {
		return nil
	}

	// Clear any stale wakeup so the wait below observes only a stop that
	// happens after the signal.
	d.stopObserved.Clear()

	if sigErr := d.transport.Interrupt(); sigErr != nil {
		return sigErr
	}

	// A stop that raced in between the state check and Clear has already
	// updated the state machine; its wakeup may have been consumed, so the
	// state is re-checked here and on each wait tick rather than trusting
	// the signal alone.
	timer := time.NewTimer(d.interruptTimeout)
	defer timer.Stop()
	recheck := time.NewTicker(10 * time.Millisecond)
	defer recheck.Stop()

	for {
		if state := d.session.currentState(); state != StateRunning {
			if state == StateTerminated {
				return ErrTransportClosed
			}
			return nil
		}

		select {
		case <-d.stopObserved.WaitChannel():
			if d.session.currentState() == StateTerminated {
				return ErrTransportClosed
			}
			return nil
		case <-recheck.C:
		case <-timer.C:
			return fmt.Errorf("%w: interrupt not acknowledged within %v", ErrCommandTimeout, d.interruptTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
