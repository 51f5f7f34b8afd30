// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RunState tracks where the debugged program is in its lifecycle.
type RunState int

const (
	// StateNotStarted means the debugger is up but the inferior has not run.
	StateNotStarted RunState = iota

	// StateRunning means the inferior is executing.
	StateRunning

	// StatePaused means the inferior is stopped at a breakpoint, signal, or
	// step boundary and can be inspected.
	StatePaused

	// StateFinished means the inferior exited; the debugger is still alive
	// and the program can be run again.
	StateFinished

	// StateTerminated means the debugger process itself is gone.
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StopInfo captures why the inferior last stopped.
type StopInfo struct {
	// Reason is the MI stop reason, e.g. "breakpoint-hit" or
	// "signal-received".
	Reason string `json:"reason,omitempty"`

	// Signal is the signal name when Reason is "signal-received".
	Signal string `json:"signal,omitempty"`

	// ExitCode is set when the inferior exited. GDB reports it in octal.
	ExitCode *int `json:"exitCode,omitempty"`

	// ThreadID is the thread that triggered the stop.
	ThreadID string `json:"threadId,omitempty"`

	// Frame is the stop frame as reported by GDB, when present.
	Frame Value `json:"frame,omitempty"`
}

// SessionStatus is a point-in-time snapshot of a debug session.
type SessionStatus struct {
	SessionID string    `json:"sessionId"`
	Pid       int32     `json:"pid"`
	Program   string    `json:"program,omitempty"`
	State     RunState  `json:"-"`
	StateName string    `json:"state"`
	LastStop  *StopInfo `json:"lastStop,omitempty"`
}

// session is the state machine for one debugger instance. State changes are
// driven exclusively by exec-async records observed on the wire, so the view
// stays correct regardless of whether execution was started by a bridge
// operation or a raw user command.
type session struct {
	id      string
	pid     int32
	program string

	mu    sync.Mutex
	state RunState
	stop  *StopInfo
}

func newSession(pid int32, program string) *session {
	return &session{
		id:      uuid.NewString(),
		pid:     pid,
		program: program,
		state:   StateNotStarted,
	}
}

// observeExecAsync updates the run state from a *running or *stopped record.
// Records of other kinds are ignored. Returns true when the record moved the
// session into StatePaused or StateFinished (the inferior is no longer
// executing).
func (s *session) observeExecAsync(rec Record) bool {
	if rec.Kind != RecordExecAsync {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch rec.Class {
	case ClassRunning:
		if s.state == StateNotStarted || s.state == StatePaused || s.state == StateFinished {
			s.state = StateRunning
			s.stop = nil
		}
		return false

	case ClassStopped:
		reason := rec.Payload.FieldStr("reason")
		if strings.HasPrefix(reason, "exited") {
			s.state = StateFinished
			s.stop = exitStopInfo(rec, reason)
			return true
		}
		if s.state == StateRunning || s.state == StateNotStarted {
			s.state = StatePaused
		}
		s.stop = pauseStopInfo(rec, reason)
		return true
	}

	return false
}

// markTerminated records that the debugger process is gone. A session that
// already finished cleanly keeps StateFinished.
func (s *session) markTerminated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFinished {
		s.state = StateTerminated
	}
}

func (s *session) currentState() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns an independent snapshot of the session.
func (s *session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		SessionID: s.id,
		Pid:       s.pid,
		Program:   s.program,
		State:     s.state,
		StateName: s.state.String(),
	}
	if s.stop != nil {
		stop := *s.stop
		status.LastStop = &stop
	}
	return status
}

func exitStopInfo(rec Record, reason string) *StopInfo {
	info := &StopInfo{Reason: reason}
	// "exited" and "exited-signalled" carry no exit-code; "exited-normally"
	// implies zero; otherwise GDB reports the code in octal.
	if reason == "exited-normally" {
		zero := 0
		info.ExitCode = &zero
	} else if raw := rec.Payload.FieldStr("exit-code"); raw != "" {
		if code, parseErr := strconv.ParseInt(raw, 8, 32); parseErr == nil {
			c := int(code)
			info.ExitCode = &c
		}
	}
	if reason == "exited-signalled" {
		info.Signal = rec.Payload.FieldStr("signal-name")
	}
	return info
}

func pauseStopInfo(rec Record, reason string) *StopInfo {
	info := &StopInfo{
		Reason:   reason,
		ThreadID: rec.Payload.FieldStr("thread-id"),
	}
	if reason == "signal-received" {
		info.Signal = rec.Payload.FieldStr("signal-name")
	}
	if frame := rec.Payload.Field("frame"); !frame.IsZero() {
		info.Frame = frame
	}
	return info
}
