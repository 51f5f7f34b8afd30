// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

// RecordKind identifies the kind of one parsed unit of MI output.
type RecordKind uint8

const (
	// RecordUnknown is anything the codec does not recognize: empty lines,
	// the "(gdb)" prompt, banner noise, malformed input. Ignored upstream.
	RecordUnknown RecordKind = iota

	// RecordResult is a "^" record carrying the outcome of one command.
	RecordResult

	// RecordExecAsync is a "*" record reporting a change in the inferior's
	// run state, independent of any specific command's result.
	RecordExecAsync

	// RecordStatusAsync is a "+" record with on-going progress information.
	RecordStatusAsync

	// RecordNotifyAsync is a "=" record with supplementary notifications
	// (breakpoint changes, thread creation, library loading).
	RecordNotifyAsync

	// RecordConsoleStream is a "~" record: text GDB would print to its console.
	RecordConsoleStream

	// RecordTargetStream is a "@" record: output produced by the inferior.
	RecordTargetStream

	// RecordLogStream is a "&" record: GDB's own log/debug text. Lines read
	// from GDB's stderr are surfaced with this kind as well.
	RecordLogStream
)

func (k RecordKind) String() string {
	switch k {
	case RecordResult:
		return "result"
	case RecordExecAsync:
		return "exec-async"
	case RecordStatusAsync:
		return "status-async"
	case RecordNotifyAsync:
		return "notify-async"
	case RecordConsoleStream:
		return "console-stream"
	case RecordTargetStream:
		return "target-stream"
	case RecordLogStream:
		return "log-stream"
	default:
		return "unknown"
	}
}

// IsStream reports whether the record carries raw human-readable text rather
// than structured data.
func (k RecordKind) IsStream() bool {
	return k == RecordConsoleStream || k == RecordTargetStream || k == RecordLogStream
}

// Result and async record classes used by this package.
const (
	ClassDone    = "done"
	ClassRunning = "running"
	ClassError   = "error"
	ClassExit    = "exit"
	ClassStopped = "stopped"
)

// Record is one parsed unit of MI output, immutable once constructed.
type Record struct {
	// Kind discriminates how the remaining fields are populated.
	Kind RecordKind `json:"kind"`

	// Token is the correlation identifier echoed from the command that
	// produced this record. Valid only when HasToken is true, and only
	// present on result records in practice.
	Token    uint64 `json:"token,omitempty"`
	HasToken bool   `json:"-"`

	// Class is the result or async class ("done", "running", "stopped",
	// "error", ...). Empty for stream and unknown records.
	Class string `json:"class,omitempty"`

	// Payload is the structured body for result/async records, the carried
	// text (as a string Value) for stream records, and the raw line for
	// unknown records.
	Payload Value `json:"payload,omitempty"`
}

// Text returns the carried text of a stream record, or "" for other kinds.
func (r Record) Text() string {
	if !r.Kind.IsStream() {
		return ""
	}
	return r.Payload.Str()
}
