package process

import (
	"context"
	"os"
	"os/exec"
	"time"
)

const (
	// A valid exit code of a process is a non-negative number. We use UnknownExitCode to indicate that we have not obtained the exit code yet.
	UnknownExitCode int32 = -1

	// UnknownPID is used when a process is not started (or fails to start).
	UnknownPID int32 = -1
)

// Handle is a compound reference to a process: the process ID plus the process
// creation time, used to distinguish between different processes that happen to
// reuse the same PID.
//
// Handle is a value type and is safe to use as a map key.
type Handle struct {
	Pid          int32
	CreationTime time.Time
}

type Executor interface {
	// Starts the process described by the given command instance.
	// When the passed context is cancelled, the process is automatically terminated.
	// The exit handler, if not nil, is invoked once when the process exits.
	StartProcess(ctx context.Context, cmd *exec.Cmd, exitHandler ExitHandler) (Handle, error)

	// Sends a signal to the referenced process.
	Signal(handle Handle, sig os.Signal) error

	// Stops the referenced process, first gracefully, then forcibly.
	// Waits for the process to exit before returning.
	StopProcess(handle Handle) error
}

type ExitHandler interface {
	// Indicates that the process with the given PID has finished execution.
	// If err is nil, the process exit code was properly captured and the exitCode value is valid.
	// If err is not nil, there was a problem tracking the process and the exitCode value is not valid.
	OnProcessExited(pid int32, exitCode int32, err error)
}

// Make it easy to supply a function as a process exit handler.
type ExitHandlerFunc func(pid int32, exitCode int32, err error)

func (f ExitHandlerFunc) OnProcessExited(pid int32, exitCode int32, err error) {
	f(pid, exitCode, err)
}
