// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ipiano/gdb-mcp/pkg/process"
	"github.com/Ipiano/gdb-mcp/pkg/testutil"
)

// writeStubDebugger creates a shell script that mimics the debugger's I/O
// shape: one line of stderr chatter, then stdin echoed back to stdout.
func writeStubDebugger(t *testing.T) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("stub debugger script requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "stub-gdb")
	script := "#!/bin/sh\necho \"warning: stub chatter\" 1>&2\ncat\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestLaunchGDB_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	transport, launchErr := LaunchGDB(ctx, process.NewOSExecutor(log), GDBLaunchSpec{
		GDBPath: writeStubDebugger(t),
	}, log)
	require.NoError(t, launchErr)
	defer transport.Close()

	assert.NotEqual(t, process.UnknownPID, transport.Pid())

	require.NoError(t, transport.WriteLine("1^done\n"))

	var sawStderr, sawEcho bool
	deadline := time.After(10 * time.Second)
	for !sawStderr || !sawEcho {
		select {
		case line, ok := <-transport.Lines():
			require.True(t, ok, "line channel closed before expected output")
			if line.FromStderr {
				assert.Contains(t, line.Text, "stub chatter")
				sawStderr = true
			} else {
				assert.Equal(t, "1^done", line.Text)
				sawEcho = true
			}
		case <-deadline:
			t.Fatalf("missing output: stderr=%v echo=%v", sawStderr, sawEcho)
		}
	}
}

func TestLaunchGDB_CloseEndsStream(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	transport, launchErr := LaunchGDB(ctx, process.NewOSExecutor(log), GDBLaunchSpec{
		GDBPath: writeStubDebugger(t),
	}, log)
	require.NoError(t, launchErr)

	require.NoError(t, transport.Close())

	select {
	case <-transport.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after Close")
	}

	// The line channel drains and closes once the process is gone.
	for {
		select {
		case _, ok := <-transport.Lines():
			if !ok {
				return
			}
		case <-time.After(10 * time.Second):
			t.Fatal("line channel never closed")
		}
	}
}

func TestLaunchGDB_WriteAfterCloseFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	transport, launchErr := LaunchGDB(ctx, process.NewOSExecutor(log), GDBLaunchSpec{
		GDBPath: writeStubDebugger(t),
	}, log)
	require.NoError(t, launchErr)

	require.NoError(t, transport.Close())
	assert.ErrorIs(t, transport.WriteLine("1^done\n"), ErrTransportClosed)
}

func TestLaunchGDB_MissingExecutable(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, time.Minute)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	_, launchErr := LaunchGDB(ctx, process.NewOSExecutor(log), GDBLaunchSpec{
		GDBPath: filepath.Join(t.TempDir(), "does-not-exist"),
	}, log)
	require.ErrorIs(t, launchErr, ErrLaunchFailed)
}
