// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/Ipiano/gdb-mcp/pkg/process"
	"github.com/Ipiano/gdb-mcp/pkg/resiliency"
)

const (
	defaultStartupTimeout = 2 * time.Second
	defaultSettleDelay    = 200 * time.Millisecond
	defaultCommandTimeout = 5 * time.Second
	defaultStopTimeout    = 5 * time.Second
)

// Config carries bridge-wide settings. The zero value is usable; defaults
// are applied by NewBridge.
type Config struct {
	// GDBPath is the gdb executable to launch. Empty means "gdb" from PATH.
	GDBPath string

	// Executor starts and stops the debugger subprocess. Defaults to the
	// OS executor.
	Executor process.Executor

	// Logger receives structured diagnostics.
	Logger logr.Logger

	// StartupTimeout bounds the wait for the debugger's startup banner.
	StartupTimeout time.Duration

	// SettleDelay is how long the startup drain waits for further output
	// after the last observed line before declaring the debugger idle.
	SettleDelay time.Duration

	// CommandTimeout is the default per-command timeout, used when an
	// operation does not specify its own.
	CommandTimeout time.Duration

	// InterruptTimeout bounds the wait for a stop after SIGINT.
	InterruptTimeout time.Duration

	// newTransport is a test seam; nil means LaunchGDB.
	newTransport func(ctx context.Context, executor process.Executor, spec GDBLaunchSpec, log logr.Logger) (Transport, error)
}

// StartOptions describes one debug session to establish.
type StartOptions struct {
	// Program is the executable to debug. Optional; a session without a
	// program can attach or load one later via raw commands.
	Program string

	// Args are the inferior's command-line arguments.
	Args []string

	// Env contains environment overrides for the debugger process.
	Env map[string]string

	// InitCommands run after the debugger is up, before Start returns.
	// Failures are reported as warnings, not errors.
	InitCommands []string
}

// StartResult reports the outcome of establishing a session.
type StartResult struct {
	Status        string   `json:"status"`
	SessionID     string   `json:"sessionId"`
	Pid           int32    `json:"pid"`
	Program       string   `json:"program,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	StartupOutput []string `json:"startupOutput,omitempty"`
	InitOutput    []string `json:"initOutput,omitempty"`
}

// CommandResult is the outcome of one executed command. A "^error" result
// from the debugger is data, reported via Status and Message, not a Go
// error: the command reached the debugger and was answered.
type CommandResult struct {
	Status  string   `json:"status"`
	Command string   `json:"command"`
	Class   string   `json:"class,omitempty"`
	Output  []string `json:"output,omitempty"`
	Message string   `json:"message,omitempty"`
	Result  *Value   `json:"result,omitempty"`
	Records []Record `json:"-"`
}

// payload returns the structured result body, or the zero Value when the
// debugger sent none.
func (r CommandResult) payload() Value {
	if r.Result == nil {
		return Value{}
	}
	return *r.Result
}

// Bridge is the façade over one GDB session: it owns the transport, the
// dispatcher, and the session state machine, and exposes the operations the
// rest of the system calls.
type Bridge struct {
	config Config
	log    logr.Logger

	mu         sync.Mutex
	transport  Transport
	dispatcher *Dispatcher
	session    *session
	runCancel  context.CancelFunc
}

// NewBridge creates a bridge with defaults applied. No debugger is started
// until Start is called.
func NewBridge(config Config) *Bridge {
	if config.Executor == nil {
		config.Executor = process.NewOSExecutor(config.Logger)
	}
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = defaultStartupTimeout
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = defaultSettleDelay
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = defaultCommandTimeout
	}
	if config.newTransport == nil {
		config.newTransport = LaunchGDB
	}
	return &Bridge{
		config: config,
		log:    config.Logger,
	}
}

// Start launches the debugger, drains its startup banner, runs any init
// commands, and returns the new session's identity. Only one session may be
// active at a time.
func (b *Bridge) Start(ctx context.Context, opts StartOptions) (StartResult, error) {
	b.mu.Lock()
	if b.session != nil && b.session.currentState() != StateTerminated {
		b.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: session %s is active", ErrSessionActive, b.session.id)
	}
	// Release the previous session's plumbing if it died without Stop.
	if b.runCancel != nil {
		b.runCancel()
		b.runCancel = nil
	}
	b.mu.Unlock()

	// The debugger must outlive the Start call: its lifetime is the session,
	// not the request. runCtx ends on Stop, never on the caller's cancel.
	runCtx, runCancel := context.WithCancel(context.Background())

	transport, launchErr := b.config.newTransport(runCtx, b.config.Executor, GDBLaunchSpec{
		GDBPath: b.config.GDBPath,
		Program: opts.Program,
		Args:    opts.Args,
		Env:     opts.Env,
	}, b.log)
	if launchErr != nil {
		runCancel()
		return StartResult{}, launchErr
	}

	sess := newSession(transport.Pid(), opts.Program)
	dispatcher := NewDispatcher(runCtx, transport, sess, b.log)
	if b.config.InterruptTimeout > 0 {
		dispatcher.interruptTimeout = b.config.InterruptTimeout
	}

	startupOutput := b.drainStartup(ctx, dispatcher)
	warnings := scanStartupWarnings(startupOutput)

	result := StartResult{
		Status:        "started",
		SessionID:     sess.id,
		Pid:           sess.pid,
		Program:       opts.Program,
		Warnings:      warnings,
		StartupOutput: startupOutput,
	}

	for _, command := range opts.InitCommands {
		resp, submitErr := dispatcher.Submit(ctx, SubmitRequest{
			Command: command,
			Timeout: b.config.CommandTimeout,
		})
		if submitErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("init command %q failed: %v", command, submitErr))
			continue
		}
		result.InitOutput = append(result.InitOutput, streamText(resp.Records)...)
		if resp.Result.Class == ClassError {
			result.Warnings = append(result.Warnings, fmt.Sprintf("init command %q failed: %s", command, resp.Result.Payload.FieldStr("msg")))
		}
	}

	b.mu.Lock()
	b.transport = transport
	b.dispatcher = dispatcher
	b.session = sess
	b.runCancel = runCancel
	b.mu.Unlock()

	b.log.Info("debug session started", "sessionID", sess.id, "pid", sess.pid, "program", opts.Program, "warnings", len(result.Warnings))
	return result, nil
}

// drainStartup collects banner lines until the debugger goes quiet for the
// settle delay or the startup timeout elapses. GDB prints its banner as
// console stream records before the first prompt.
func (b *Bridge) drainStartup(ctx context.Context, dispatcher *Dispatcher) []string {
	deadline := time.NewTimer(b.config.StartupTimeout)
	defer deadline.Stop()

	var output []string
	for {
		settle := time.NewTimer(b.config.SettleDelay)
		select {
		case rec, ok := <-dispatcher.Notifications():
			settle.Stop()
			if !ok {
				return output
			}
			if rec.Kind.IsStream() {
				if text := strings.TrimRight(rec.Text(), "\n"); text != "" {
					output = append(output, text)
				}
			}
		case <-settle.C:
			return output
		case <-deadline.C:
			settle.Stop()
			return output
		case <-ctx.Done():
			settle.Stop()
			return output
		}
	}
}

// startupWarningMarkers are substrings of GDB banner lines that indicate the
// session is degraded but usable.
var startupWarningMarkers = []string{
	"no debugging symbols found",
	"not in executable format",
	"no such file",
}

func scanStartupWarnings(output []string) []string {
	var warnings []string
	for _, line := range output {
		lower := strings.ToLower(line)
		for _, marker := range startupWarningMarkers {
			if strings.Contains(lower, marker) {
				warnings = append(warnings, line)
				break
			}
		}
	}
	return warnings
}

// Execute runs one raw command (MI or CLI form) against the active session.
// A zero timeout means the bridge default.
func (b *Bridge) Execute(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	return b.execute(ctx, command, timeout, false)
}

func (b *Bridge) execute(ctx context.Context, command string, timeout time.Duration, requirePaused bool) (CommandResult, error) {
	dispatcher, getErr := b.activeDispatcher()
	if getErr != nil {
		return CommandResult{}, getErr
	}
	if timeout <= 0 {
		timeout = b.config.CommandTimeout
	}

	resp, submitErr := dispatcher.Submit(ctx, SubmitRequest{
		Command:       command,
		Timeout:       timeout,
		RequirePaused: requirePaused,
	})
	if submitErr != nil {
		return CommandResult{}, submitErr
	}

	result := CommandResult{
		Status:  "ok",
		Command: command,
		Class:   resp.Result.Class,
		Output:  streamText(resp.Records),
		Records: resp.Records,
	}
	if !resp.Result.Payload.IsZero() {
		payload := resp.Result.Payload
		result.Result = &payload
	}
	if resp.Result.Class == ClassError {
		result.Status = "error"
		result.Message = resp.Result.Payload.FieldStr("msg")
	}
	return result, nil
}

// Status reports the current session snapshot, or ErrNoSession when no
// session was ever started.
func (b *Bridge) Status() (SessionStatus, error) {
	b.mu.Lock()
	sess := b.session
	b.mu.Unlock()

	if sess == nil {
		return SessionStatus{}, ErrNoSession
	}
	return sess.Status(), nil
}

// Interrupt pauses a running program. A no-op when the program is not
// running.
func (b *Bridge) Interrupt(ctx context.Context) error {
	dispatcher, getErr := b.activeDispatcher()
	if getErr != nil {
		return getErr
	}
	return dispatcher.Interrupt(ctx)
}

// Stop tears the session down: a best-effort -gdb-exit, then transport
// close, then a bounded wait for the read loop to drain.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	transport := b.transport
	dispatcher := b.dispatcher
	runCancel := b.runCancel
	b.transport = nil
	b.dispatcher = nil
	b.runCancel = nil
	b.mu.Unlock()

	if transport == nil {
		return ErrNoSession
	}

	// Politely ask first; gdb exits promptly on -gdb-exit even with a
	// running inferior.
	_, exitErr := dispatcher.Submit(ctx, SubmitRequest{Command: "-gdb-exit", Timeout: time.Second})
	if exitErr != nil {
		b.log.V(1).Info("gdb-exit did not complete cleanly", "error", filterContextError(exitErr, ctx, b.log))
	}

	closeErr := transport.Close()

	drained := resiliency.RunWithTimeout(func() {
		<-dispatcher.Done()
	}, defaultStopTimeout)
	if runCancel != nil {
		runCancel()
	}

	var timeoutErr error
	if !drained {
		timeoutErr = fmt.Errorf("debugger output not drained within %v", defaultStopTimeout)
	}

	b.log.Info("debug session stopped")
	return errors.Join(filterContextError(closeErr, ctx, b.log), timeoutErr)
}

// Notifications exposes unsolicited async records from the active session.
func (b *Bridge) Notifications() (<-chan Record, error) {
	dispatcher, getErr := b.activeDispatcher()
	if getErr != nil {
		return nil, getErr
	}
	return dispatcher.Notifications(), nil
}

func (b *Bridge) activeDispatcher() (*Dispatcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dispatcher == nil {
		return nil, ErrNoSession
	}
	return b.dispatcher, nil
}

// streamText extracts printable console/log text from a record slice,
// trimming the trailing newline each MI stream chunk carries.
func streamText(records []Record) []string {
	var out []string
	for _, rec := range records {
		if !rec.Kind.IsStream() {
			continue
		}
		if text := strings.TrimRight(rec.Text(), "\n"); text != "" {
			out = append(out, text)
		}
	}
	return out
}
