// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
)

var (
	// ErrLaunchFailed is returned when the GDB subprocess could not be started.
	// Fatal to Start; no session is created.
	ErrLaunchFailed = errors.New("failed to launch debugger")

	// ErrTransportClosed is returned when the GDB subprocess has exited.
	// The session moves to StateTerminated.
	ErrTransportClosed = errors.New("debugger transport is closed")

	// ErrCommandTimeout is returned when no matching result record arrives
	// within the caller's deadline. Recoverable; the caller may retry or
	// interrupt the inferior.
	ErrCommandTimeout = errors.New("timed out waiting for command result")

	// ErrInvalidState is returned when an operation requires a paused inferior
	// and the current session state disagrees. Recoverable; the caller should
	// query status first.
	ErrInvalidState = errors.New("operation is not valid in the current session state")

	// ErrNoSession is returned when an operation requires an active session
	// and none exists.
	ErrNoSession = errors.New("no active debug session")

	// ErrSessionActive is returned by Start when a session already exists.
	ErrSessionActive = errors.New("a debug session is already active")
)

// IsFatal returns true if the error invalidates the session: further
// operations will not succeed until a new session is started.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLaunchFailed) ||
		errors.Is(err, ErrTransportClosed)
}

// IsRecoverable returns true if the error leaves the session usable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCommandTimeout) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNoSession) ||
		errors.Is(err, ErrSessionActive)
}

// filterContextError filters out redundant context errors during shutdown.
// If the context is already done and the error is a context.Canceled or
// context.DeadlineExceeded, the error is logged at debug level and nil is
// returned; otherwise the original error is returned unchanged.
func filterContextError(err error, ctx context.Context, log logr.Logger) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		log.V(1).Info("Filtering redundant context error", "error", err)
		return nil
	}

	return err
}
