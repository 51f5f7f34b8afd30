// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ipiano/gdb-mcp/pkg/process"
	"github.com/Ipiano/gdb-mcp/pkg/testutil"
)

// scriptedTransport extends fakeTransport with automatic responses: each
// written command is answered by the script function, the way a live
// debugger would answer it.
type scriptedTransport struct {
	*fakeTransport

	// script maps a written command (token stripped) to the raw output
	// lines to emit. Unmatched commands get a bare ^done.
	script func(command string, token uint64) []string
}

func (s *scriptedTransport) WriteLine(line string) error {
	if writeErr := s.fakeTransport.WriteLine(line); writeErr != nil {
		return writeErr
	}
	token := tokenOf(line)
	command := strings.TrimRight(strings.TrimLeft(line, "0123456789"), "\n")

	var replies []string
	if s.script != nil {
		replies = s.script(command, token)
	}
	if replies == nil {
		replies = []string{fmt.Sprintf("%d^done", token)}
	}
	for _, reply := range replies {
		s.emit(reply)
	}
	return nil
}

// newTestBridge wires a Bridge to a scripted transport. banner lines are
// emitted before the first prompt, as gdb does on startup.
func newTestBridge(t *testing.T, banner []string, script func(command string, token uint64) []string) (*Bridge, *scriptedTransport) {
	t.Helper()

	transport := &scriptedTransport{
		fakeTransport: newFakeTransport(),
		script:        script,
	}

	bridge := NewBridge(Config{
		Logger:         testutil.NewLogForTesting(t.Name()),
		StartupTimeout: 500 * time.Millisecond,
		SettleDelay:    50 * time.Millisecond,
		CommandTimeout: 5 * time.Second,
		newTransport: func(ctx context.Context, executor process.Executor, spec GDBLaunchSpec, log logr.Logger) (Transport, error) {
			for _, line := range banner {
				transport.emit(line)
			}
			return transport, nil
		},
	})
	t.Cleanup(func() {
		transport.Close()
	})
	return bridge, transport
}

func TestBridge_StartCollectsBannerAndWarnings(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	banner := []string{
		`~"GNU gdb (GDB) 13.2\n"`,
		`~"Reading symbols from /bin/demo...\n"`,
		`~"(No debugging symbols found in /bin/demo)\n"`,
	}
	bridge, _ := newTestBridge(t, banner, nil)

	result, startErr := bridge.Start(ctx, StartOptions{Program: "/bin/demo"})
	require.NoError(t, startErr)

	assert.Equal(t, "started", result.Status)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, int32(4242), result.Pid)
	assert.Len(t, result.StartupOutput, 3)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "No debugging symbols found")

	status, statusErr := bridge.Status()
	require.NoError(t, statusErr)
	assert.Equal(t, StateNotStarted, status.State)
	assert.Equal(t, "/bin/demo", status.Program)
}

func TestBridge_StartRunsInitCommands(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	bridge, _ := newTestBridge(t, nil, func(command string, token uint64) []string {
		if strings.Contains(command, "bad-command") {
			return []string{fmt.Sprintf(`%d^error,msg="Undefined command"`, token)}
		}
		return nil
	})

	result, startErr := bridge.Start(ctx, StartOptions{
		Program:      "/bin/demo",
		InitCommands: []string{"-gdb-set confirm off", "bad-command"},
	})
	require.NoError(t, startErr, "init command failures must not fail startup")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "bad-command")
	assert.Contains(t, result.Warnings[0], "Undefined command")
}

func TestBridge_StartFailsWhenLaunchFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	bridge := NewBridge(Config{
		Logger: testutil.NewLogForTesting(t.Name()),
		newTransport: func(ctx context.Context, executor process.Executor, spec GDBLaunchSpec, log logr.Logger) (Transport, error) {
			return nil, fmt.Errorf("%w: no such file", ErrLaunchFailed)
		},
	})

	_, startErr := bridge.Start(ctx, StartOptions{Program: "/missing"})
	require.ErrorIs(t, startErr, ErrLaunchFailed)

	_, statusErr := bridge.Status()
	assert.ErrorIs(t, statusErr, ErrNoSession)
}

func TestBridge_SessionOutlivesStartContext(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{fakeTransport: newFakeTransport()}

	var launchCtx context.Context
	bridge := NewBridge(Config{
		Logger:         testutil.NewLogForTesting(t.Name()),
		StartupTimeout: 500 * time.Millisecond,
		SettleDelay:    50 * time.Millisecond,
		newTransport: func(ctx context.Context, executor process.Executor, spec GDBLaunchSpec, log logr.Logger) (Transport, error) {
			launchCtx = ctx
			return transport, nil
		},
	})
	t.Cleanup(func() {
		transport.Close()
	})

	startCtx, startCancel := context.WithCancel(context.Background())
	_, startErr := bridge.Start(startCtx, StartOptions{Program: "/bin/demo"})
	require.NoError(t, startErr)

	// The per-request context ends once the caller is done starting; the
	// debugger process keeps running until Stop.
	startCancel()
	require.NotNil(t, launchCtx)
	assert.NoError(t, launchCtx.Err(), "debugger lifetime must not be bound to the Start caller's context")

	execCtx, execCancel := testutil.GetTestContext(t, time.Minute)
	defer execCancel()
	result, execErr := bridge.Execute(execCtx, "-thread-info", 0)
	require.NoError(t, execErr)
	assert.Equal(t, "ok", result.Status)

	require.NoError(t, bridge.Stop(execCtx))
	assert.Error(t, launchCtx.Err(), "Stop releases the session-scoped context")
}

func TestBridge_SecondStartIsRejected(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	bridge, _ := newTestBridge(t, nil, nil)

	_, startErr := bridge.Start(ctx, StartOptions{Program: "/bin/demo"})
	require.NoError(t, startErr)

	_, againErr := bridge.Start(ctx, StartOptions{Program: "/bin/other"})
	require.ErrorIs(t, againErr, ErrSessionActive)
}

func TestBridge_ExecuteRendersCLIAndMI(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	bridge, transport := newTestBridge(t, nil, nil)
	_, startErr := bridge.Start(ctx, StartOptions{})
	require.NoError(t, startErr)

	_, miErr := bridge.Execute(ctx, "-break-list", 0)
	require.NoError(t, miErr)

	_, cliErr := bridge.Execute(ctx, "info registers", 0)
	require.NoError(t, cliErr)

	wires := transport.writtenLines()
	require.Len(t, wires, 2)
	assert.Contains(t, wires[0], "-break-list")
	assert.Contains(t, wires[1], `-interpreter-exec console "info registers"`)
}

func TestBridge_ExecuteReportsDebuggerErrorAsData(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	bridge, _ := newTestBridge(t, nil, func(command string, token uint64) []string {
		if strings.Contains(command, "-data-evaluate-expression") {
			return []string{fmt.Sprintf(`%d^error,msg="No symbol \"foo\" in current context."`, token)}
		}
		return nil
	})
	_, startErr := bridge.Start(ctx, StartOptions{})
	require.NoError(t, startErr)

	result, execErr := bridge.Execute(ctx, "-data-evaluate-expression foo", 0)
	require.NoError(t, execErr, "a ^error result is data, not a transport failure")
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, ClassError, result.Class)
	assert.Contains(t, result.Message, "No symbol")
}

func TestBridge_DerivedOperations(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	script := func(command string, token uint64) []string {
		switch {
		case strings.Contains(command, "-thread-info"):
			return []string{fmt.Sprintf(`%d^done,threads=[{id="1",target-id="Thread 0x7f",name="demo",state="stopped",frame={func="main"}}],current-thread-id="1"`, token)}
		case strings.Contains(command, "-stack-list-frames"):
			return []string{fmt.Sprintf(`%d^done,stack=[frame={level="0",func="inner",file="demo.c",line="4"},frame={level="1",func="main",file="demo.c",line="20"}]`, token)}
		case strings.Contains(command, "-break-insert"):
			return []string{fmt.Sprintf(`%d^done,bkpt={number="2",type="breakpoint",disp="del",enabled="y",addr="0x1129",func="main",file="demo.c",line="12",cond="x > 3",times="0"}`, token)}
		case strings.Contains(command, "-break-list"):
			return []string{fmt.Sprintf(`%d^done,BreakpointTable={nr_rows="1",body=[bkpt={number="2",type="breakpoint",enabled="y",func="main"}]}`, token)}
		case strings.Contains(command, "-data-evaluate-expression"):
			return []string{fmt.Sprintf(`%d^done,value="42"`, token)}
		case strings.Contains(command, "-stack-list-variables"):
			return []string{fmt.Sprintf(`%d^done,variables=[{name="x",type="int",value="3"},{name="buf",type="char [16]"}]`, token)}
		case strings.Contains(command, "-data-list-register-names"):
			return []string{fmt.Sprintf(`%d^done,register-names=["rax","rbx",""]`, token)}
		case strings.Contains(command, "-data-list-register-values"):
			return []string{fmt.Sprintf(`%d^done,register-values=[{number="0",value="0x2a"},{number="1",value="0x0"},{number="2",value="0x0"}]`, token)}
		}
		return nil
	}

	bridge, _ := newTestBridge(t, nil, script)
	_, startErr := bridge.Start(ctx, StartOptions{Program: "/bin/demo"})
	require.NoError(t, startErr)

	threads, threadsErr := bridge.Threads(ctx)
	require.NoError(t, threadsErr)
	assert.Equal(t, "1", threads.CurrentThreadID)
	require.Len(t, threads.Threads, 1)
	assert.Equal(t, "demo", threads.Threads[0].Name)

	frames, framesErr := bridge.Backtrace(ctx, "1", 10)
	require.NoError(t, framesErr)
	require.Len(t, frames, 2)
	assert.Equal(t, "inner", frames[0].Function)
	assert.Equal(t, "20", frames[1].Line)

	bkpt, bkptErr := bridge.SetBreakpoint(ctx, "demo.c:12", BreakpointOptions{Condition: "x > 3", Temporary: true})
	require.NoError(t, bkptErr)
	assert.Equal(t, "2", bkpt.Number)
	assert.True(t, bkpt.Enabled)
	assert.True(t, bkpt.Temporary)
	assert.Equal(t, "x > 3", bkpt.Condition)

	listed, listErr := bridge.ListBreakpoints(ctx)
	require.NoError(t, listErr)
	require.Len(t, listed, 1)
	assert.Equal(t, "main", listed[0].Function)

	value, evalErr := bridge.EvaluateExpression(ctx, "x * 14")
	require.NoError(t, evalErr)
	assert.Equal(t, "42", value)

	variables, varsErr := bridge.Variables(ctx, "1", 0)
	require.NoError(t, varsErr)
	require.Len(t, variables, 2)
	assert.Equal(t, "x", variables[0].Name)
	assert.Equal(t, "3", variables[0].Value)

	registers, regsErr := bridge.Registers(ctx)
	require.NoError(t, regsErr)
	// The third register has an empty name and is dropped.
	require.Len(t, registers, 2)
	assert.Equal(t, "rax", registers[0].Name)
	assert.Equal(t, "0x2a", registers[0].Value)
}

func TestBridge_StopTearsDownSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()

	bridge, transport := newTestBridge(t, nil, func(command string, token uint64) []string {
		if strings.Contains(command, "-gdb-exit") {
			return []string{fmt.Sprintf("%d^exit", token)}
		}
		return nil
	})
	_, startErr := bridge.Start(ctx, StartOptions{})
	require.NoError(t, startErr)

	require.NoError(t, bridge.Stop(ctx))

	wires := transport.writtenLines()
	require.NotEmpty(t, wires)
	assert.Contains(t, wires[len(wires)-1], "-gdb-exit")

	_, execErr := bridge.Execute(ctx, "-thread-info", 0)
	assert.ErrorIs(t, execErr, ErrNoSession)

	// Stopping twice reports the absent session.
	assert.ErrorIs(t, bridge.Stop(ctx), ErrNoSession)
}
