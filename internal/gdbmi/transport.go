// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/Ipiano/gdb-mcp/pkg/process"
)

// Line is one raw line read from the GDB subprocess. Lines from stderr carry
// GDB's own diagnostic text rather than MI records and are flagged so the
// read loop can surface them as log-stream records instead of parsing them.
type Line struct {
	Text       string
	FromStderr bool
}

// Transport abstracts the GDB subprocess connection: line-oriented writes to
// stdin, merged line-oriented reads from stdout/stderr, and out-of-band
// interruption. Implementations must be safe for concurrent use.
type Transport interface {
	// WriteLine writes one line (newline included) to the debugger's stdin.
	// Returns ErrTransportClosed once the subprocess has exited.
	WriteLine(line string) error

	// Lines returns the channel of output lines. The channel is closed when
	// the subprocess exits and its output is fully drained.
	Lines() <-chan Line

	// Interrupt delivers an out-of-band interrupt signal to the debugger,
	// distinct from writing to stdin: a written command would queue behind
	// the running inferior indefinitely.
	Interrupt() error

	// Pid returns the debugger process ID.
	Pid() int32

	// Done returns a channel closed when the subprocess has exited.
	Done() <-chan struct{}

	// Close terminates the subprocess (graceful first, forced if needed).
	Close() error
}

// GDBLaunchSpec describes how to launch the GDB subprocess.
type GDBLaunchSpec struct {
	// GDBPath is the gdb executable. Empty means "gdb" from PATH.
	GDBPath string

	// Program is the optional inferior executable to load.
	Program string

	// Args are inferior command-line arguments, passed through --args.
	Args []string

	// Env contains environment overrides applied on top of the inherited
	// environment.
	Env map[string]string
}

// gdbTransport is the Transport implementation over a real GDB subprocess
// started via a process.Executor.
type gdbTransport struct {
	executor process.Executor
	handle   process.Handle
	log      logr.Logger

	stdin io.WriteCloser
	lines chan Line
	done  chan struct{}

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// LaunchGDB spawns gdb in MI mode and returns a Transport connected to it.
// The returned error wraps ErrLaunchFailed when the subprocess could not be
// started. Cancelling the context terminates the subprocess.
func LaunchGDB(ctx context.Context, executor process.Executor, spec GDBLaunchSpec, log logr.Logger) (Transport, error) {
	gdbPath := spec.GDBPath
	if gdbPath == "" {
		gdbPath = "gdb"
	}

	argv := []string{"--interpreter=mi2"}
	if spec.Program != "" {
		argv = append(argv, "--args", spec.Program)
		argv = append(argv, spec.Args...)
	}

	cmd := exec.Command(gdbPath, argv...)
	cmd.Env = mergedEnv(spec.Env)

	// Plumb the pipes manually instead of using StdoutPipe so that process
	// wait cannot close the read side before buffered output is drained.
	stdinR, stdinW, pipeErr := os.Pipe()
	if pipeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, pipeErr)
	}
	stdoutR, stdoutW, pipeErr := os.Pipe()
	if pipeErr != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, pipeErr)
	}
	stderrR, stderrW, pipeErr := os.Pipe()
	if pipeErr != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, pipeErr)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	t := &gdbTransport{
		executor: executor,
		log:      log,
		stdin:    stdinW,
		lines:    make(chan Line, 64),
		done:     make(chan struct{}),
	}

	handle, startErr := executor.StartProcess(ctx, cmd, process.ExitHandlerFunc(func(pid int32, exitCode int32, err error) {
		log.V(1).Info("debugger process exited", "pid", pid, "exitCode", exitCode, "error", err)
		t.markClosed()
		close(t.done)
	}))

	// The parent's copies of the child ends are no longer needed.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	if startErr != nil {
		stdinW.Close()
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, startErr)
	}

	t.handle = handle
	log.Info("debugger launched", "path", gdbPath, "pid", handle.Pid, "program", spec.Program)

	var readers sync.WaitGroup
	readers.Add(2)
	go t.readPipe(stdoutR, false, &readers)
	go t.readPipe(stderrR, true, &readers)
	go func() {
		readers.Wait()
		close(t.lines)
	}()

	return t, nil
}

// mergedEnv combines the inherited environment with overrides, overrides
// appended last (and therefore winning) in sorted order for determinism.
func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}

func (t *gdbTransport) readPipe(pipe io.ReadCloser, fromStderr bool, wg *sync.WaitGroup) {
	defer wg.Done()
	defer pipe.Close()

	scanner := bufio.NewScanner(pipe)
	// MI lines for large structured results (register dumps, long backtraces)
	// can exceed the default scanner limit.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		t.lines <- Line{Text: scanner.Text(), FromStderr: fromStderr}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		t.log.V(1).Info("debugger output stream ended with error", "stderr", fromStderr, "error", scanErr)
	}
}

func (t *gdbTransport) WriteLine(line string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, writeErr := io.WriteString(t.stdin, line); writeErr != nil {
		return fmt.Errorf("%w: %w", ErrTransportClosed, writeErr)
	}
	return nil
}

func (t *gdbTransport) Lines() <-chan Line {
	return t.lines
}

func (t *gdbTransport) Interrupt() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	return t.executor.Signal(t.handle, os.Interrupt)
}

func (t *gdbTransport) Pid() int32 {
	return t.handle.Pid
}

func (t *gdbTransport) Done() <-chan struct{} {
	return t.done
}

func (t *gdbTransport) Close() error {
	t.closeOnce.Do(func() {
		t.markClosed()

		// Closing stdin asks gdb to exit on its own; StopProcess escalates
		// if it does not.
		_ = t.stdin.Close()
		t.closeErr = t.executor.StopProcess(t.handle)
	})
	return t.closeErr
}

func (t *gdbTransport) markClosed() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
