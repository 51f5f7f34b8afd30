// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

/*
Package gdbmi drives a GDB subprocess through the GDB/MI (Machine Interface)
protocol and exposes a synchronous request/response API on top of it.

# Architecture Overview

The package reconciles three timing domains: synchronous caller requests,
asynchronous MI notifications, and an inferior process that can block
indefinitely. A single background read loop drains the GDB transport; callers
block on per-token wait channels until their result record arrives or their
deadline passes.

# Key Components

  - Record / Value: parsed units of MI output (the wire codec)
  - Transport: the GDB subprocess with line-oriented stdin/stdout/stderr streams
  - Dispatcher: token allocation, command/response correlation, interruption
  - Bridge: the session facade (start, execute, status, interrupt, stop) plus
    derived inspection operations (threads, backtrace, breakpoints, variables)

# Command Flow

 1. Bridge renders the command (CLI commands are wrapped with
    -interpreter-exec console) and the Dispatcher prefixes a fresh token
 2. The command line is written to GDB's stdin
 3. The read loop parses each output line into a Record
 4. Exec-async records update the session run-state machine
 5. The result record with the matching token releases the waiting caller,
    together with every record observed since submission

Interruption bypasses command submission entirely: SIGINT is delivered to the
GDB process out of band, and the caller waits for the state machine to observe
the resulting stop.
*/
package gdbmi
