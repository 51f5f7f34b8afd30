package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/tklauser/ps"
)

const defaultStopGracePeriod = 10 * time.Second

type trackedProcess struct {
	cmd      *exec.Cmd
	handle   Handle
	exited   chan struct{} // closed when the wait goroutine observes process exit
	exitCode int32
	exitErr  error
}

// OSExecutor runs and stops operating system processes.
// A single wait goroutine per process captures the exit result, so Signal and
// StopProcess never race with the wait call.
type OSExecutor struct {
	mu      sync.Mutex
	running map[Handle]*trackedProcess
	log     logr.Logger

	// StopGracePeriod is how long StopProcess waits after SIGTERM before
	// escalating to SIGKILL. Zero means defaultStopGracePeriod.
	StopGracePeriod time.Duration
}

func NewOSExecutor(log logr.Logger) *OSExecutor {
	return &OSExecutor{
		running: make(map[Handle]*trackedProcess),
		log:     log.WithName("os-executor"),
	}
}

var _ Executor = (*OSExecutor)(nil)

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, exitHandler ExitHandler) (Handle, error) {
	if startErr := cmd.Start(); startErr != nil {
		return Handle{Pid: UnknownPID}, startErr
	}

	pid := int32(cmd.Process.Pid)
	handle := Handle{Pid: pid, CreationTime: processCreationTime(pid, e.log)}

	tp := &trackedProcess{
		cmd:      cmd,
		handle:   handle,
		exited:   make(chan struct{}),
		exitCode: UnknownExitCode,
	}

	e.mu.Lock()
	e.running[handle] = tp
	e.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()

		e.mu.Lock()
		tp.exitCode, tp.exitErr = processExecResult(waitErr, cmd)
		delete(e.running, handle)
		e.mu.Unlock()
		close(tp.exited)

		if exitHandler != nil {
			exitHandler.OnProcessExited(pid, tp.exitCode, tp.exitErr)
		}
	}()

	go func() {
		select {
		case <-tp.exited:
		case <-ctx.Done():
			if stopErr := e.StopProcess(handle); stopErr != nil {
				e.log.Error(stopErr, "could not stop process after context cancellation", "pid", pid)
			}
		}
	}()

	return handle, nil
}

func (e *OSExecutor) Signal(handle Handle, sig os.Signal) error {
	tp, found := e.lookup(handle)
	if !found {
		return os.ErrProcessDone
	}

	signalErr := tp.cmd.Process.Signal(sig)
	if signalErr != nil && !errors.Is(signalErr, os.ErrProcessDone) {
		return fmt.Errorf("could not send signal %v to process %d: %w", sig, handle.Pid, signalErr)
	}
	return nil
}

func (e *OSExecutor) StopProcess(handle Handle) error {
	tp, found := e.lookup(handle)
	if !found {
		// Already exited (or never tracked), nothing to stop.
		return nil
	}

	grace := e.StopGracePeriod
	if grace == 0 {
		grace = defaultStopGracePeriod
	}

	// Give the process a chance to exit gracefully before killing it.
	// There is no established standard for graceful-shutdown signals, but
	// SIGTERM is the common choice.
	termErr := e.signalAndWaitForExit(tp, syscall.SIGTERM, grace)
	switch {
	case termErr == nil:
		e.log.V(1).Info("process stopped by SIGTERM", "pid", handle.Pid)
		return nil
	case !errors.Is(termErr, context.DeadlineExceeded):
		return termErr
	}

	killErr := e.signalAndWaitForExit(tp, syscall.SIGKILL, grace)
	switch {
	case killErr == nil:
		e.log.V(1).Info("process stopped by SIGKILL", "pid", handle.Pid)
		return nil
	case errors.Is(killErr, context.DeadlineExceeded):
		return fmt.Errorf("process %d did not exit after SIGKILL", handle.Pid)
	default:
		return killErr
	}
}

// Sends a signal to a tracked process and waits for it to exit.
// Returns context.DeadlineExceeded if the process does not exit within the timeout.
func (e *OSExecutor) signalAndWaitForExit(tp *trackedProcess, sig syscall.Signal, timeout time.Duration) error {
	signalErr := tp.cmd.Process.Signal(sig)
	switch {
	case errors.Is(signalErr, os.ErrProcessDone):
		return nil
	case signalErr != nil:
		return fmt.Errorf("could not send signal %s to process %d: %w", sig.String(), tp.handle.Pid, signalErr)
	}

	select {
	case <-tp.exited:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func (e *OSExecutor) lookup(handle Handle) (*trackedProcess, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tp, found := e.running[handle]
	return tp, found
}

// Returns the result of process execution based on the error from the command wait call.
func processExecResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	var ee *exec.ExitError
	if waitErr == nil {
		return int32(cmd.ProcessState.ExitCode()), nil
	} else if errors.As(waitErr, &ee) {
		return int32(ee.ExitCode()), nil
	} else {
		return UnknownExitCode, waitErr
	}
}

// processCreationTime returns the OS-recorded creation time for the process,
// falling back to the current time when the information is not available.
// The creation time is what makes a Handle survive PID reuse.
func processCreationTime(pid int32, log logr.Logger) time.Time {
	psProcess, psErr := ps.FindProcess(int(pid))
	if psErr != nil {
		log.V(1).Info("could not find process creation time", "pid", pid, "error", psErr)
		return time.Now()
	}
	return psProcess.CreationTime()
}
