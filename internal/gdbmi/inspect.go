// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"context"
	"fmt"
	"strings"
)

// ThreadInfo summarizes one thread of the inferior.
type ThreadInfo struct {
	ID       string `json:"id"`
	TargetID string `json:"targetId,omitempty"`
	Name     string `json:"name,omitempty"`
	State    string `json:"state,omitempty"`
	Frame    Value  `json:"frame,omitempty"`
}

// ThreadList is the result of a thread query.
type ThreadList struct {
	CurrentThreadID string       `json:"currentThreadId,omitempty"`
	Threads         []ThreadInfo `json:"threads"`
}

// Frame summarizes one stack frame.
type Frame struct {
	Level    string `json:"level"`
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	FullName string `json:"fullname,omitempty"`
	Line     string `json:"line,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Breakpoint summarizes one breakpoint as reported by the debugger.
type Breakpoint struct {
	Number    string `json:"number"`
	Type      string `json:"type,omitempty"`
	Enabled   bool   `json:"enabled"`
	Address   string `json:"address,omitempty"`
	Function  string `json:"function,omitempty"`
	File      string `json:"file,omitempty"`
	Line      string `json:"line,omitempty"`
	Condition string `json:"condition,omitempty"`
	HitCount  string `json:"hitCount,omitempty"`
	Temporary bool   `json:"temporary,omitempty"`
}

// BreakpointOptions modify SetBreakpoint behavior.
type BreakpointOptions struct {
	// Condition makes the breakpoint conditional on the given expression.
	Condition string

	// Temporary makes the breakpoint self-delete after the first hit.
	Temporary bool
}

// Variable is one variable or register with its reported value.
type Variable struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// Threads lists the inferior's threads. Valid in any non-terminated state;
// GDB answers thread queries even while the program runs.
func (b *Bridge) Threads(ctx context.Context) (ThreadList, error) {
	result, execErr := b.execute(ctx, "-thread-info", 0, false)
	if resolveErr := resolveCommand(result, execErr); resolveErr != nil {
		return ThreadList{}, resolveErr
	}

	list := ThreadList{
		CurrentThreadID: result.payload().FieldStr("current-thread-id"),
	}
	for _, item := range result.payload().Field("threads").Items() {
		list.Threads = append(list.Threads, ThreadInfo{
			ID:       item.FieldStr("id"),
			TargetID: item.FieldStr("target-id"),
			Name:     item.FieldStr("name"),
			State:    item.FieldStr("state"),
			Frame:    item.Field("frame"),
		})
	}
	return list, nil
}

// Backtrace returns up to maxFrames stack frames for a thread. An empty
// threadID means the current thread; maxFrames <= 0 means no limit. Requires
// a paused program.
func (b *Bridge) Backtrace(ctx context.Context, threadID string, maxFrames int) ([]Frame, error) {
	command := "-stack-list-frames"
	if threadID != "" {
		command = fmt.Sprintf("-stack-list-frames --thread %s", threadID)
	}
	if maxFrames > 0 {
		command = fmt.Sprintf("%s 0 %d", command, maxFrames-1)
	}

	result, execErr := b.execute(ctx, command, 0, true)
	if resolveErr := resolveCommand(result, execErr); resolveErr != nil {
		return nil, resolveErr
	}

	var frames []Frame
	for _, item := range result.payload().Field("stack").Items() {
		// Each stack entry is frame={...}; a bare tuple appears when GDB
		// omits the key.
		frame := item.Field("frame")
		if frame.IsZero() {
			frame = item
		}
		frames = append(frames, Frame{
			Level:    frame.FieldStr("level"),
			Function: frame.FieldStr("func"),
			File:     frame.FieldStr("file"),
			FullName: frame.FieldStr("fullname"),
			Line:     frame.FieldStr("line"),
			Address:  frame.FieldStr("addr"),
		})
	}
	return frames, nil
}

// SetBreakpoint inserts a breakpoint at a location ("file:line", function
// name, or "*address").
func (b *Bridge) SetBreakpoint(ctx context.Context, location string, opts BreakpointOptions) (Breakpoint, error) {
	var sb strings.Builder
	sb.WriteString("-break-insert")
	if opts.Temporary {
		sb.WriteString(" -t")
	}
	if opts.Condition != "" {
		sb.WriteString(" -c ")
		sb.WriteString(quoteCString(opts.Condition))
	}
	sb.WriteString(" ")
	sb.WriteString(location)

	result, execErr := b.execute(ctx, sb.String(), 0, false)
	if resolveErr := resolveCommand(result, execErr); resolveErr != nil {
		return Breakpoint{}, resolveErr
	}
	return breakpointFromTuple(result.payload().Field("bkpt")), nil
}

// ListBreakpoints reports all current breakpoints.
func (b *Bridge) ListBreakpoints(ctx context.Context) ([]Breakpoint, error) {
	result, execErr := b.execute(ctx, "-break-list", 0, false)
	if resolveErr := resolveCommand(result, execErr); resolveErr != nil {
		return nil, resolveErr
	}

	var breakpoints []Breakpoint
	body := result.payload().Field("BreakpointTable").Field("body")
	for _, item := range body.Items() {
		bkpt := item.Field("bkpt")
		if bkpt.IsZero() {
			bkpt = item
		}
		breakpoints = append(breakpoints, breakpointFromTuple(bkpt))
	}
	return breakpoints, nil
}

// DeleteBreakpoint removes a breakpoint by its number.
func (b *Bridge) DeleteBreakpoint(ctx context.Context, number string) error {
	result, execErr := b.execute(ctx, fmt.Sprintf("-break-delete %s", number), 0, false)
	return resolveCommand(result, execErr)
}

// Run starts the program from the beginning. Valid from StateNotStarted and
// StateFinished.
func (b *Bridge) Run(ctx context.Context) error {
	result, execErr := b.execute(ctx, "-exec-run", 0, true)
	return resolveCommand(result, execErr)
}

// Continue resumes a paused program.
func (b *Bridge) Continue(ctx context.Context) error {
	result, execErr := b.execute(ctx, "-exec-continue", 0, true)
	return resolveCommand(result, execErr)
}

// Step executes one source line, stepping into calls.
func (b *Bridge) Step(ctx context.Context) error {
	result, execErr := b.execute(ctx, "-exec-step", 0, true)
	return resolveCommand(result, execErr)
}

// Next executes one source line, stepping over calls.
func (b *Bridge) Next(ctx context.Context) error {
	result, execErr := b.execute(ctx, "-exec-next", 0, true)
	return resolveCommand(result, execErr)
}

// Finish runs until the current function returns.
func (b *Bridge) Finish(ctx context.Context) error {
	result, execErr := b.execute(ctx, "-exec-finish", 0, true)
	return resolveCommand(result, execErr)
}

// EvaluateExpression evaluates an expression in the current frame and
// returns its rendered value. Requires a paused program.
func (b *Bridge) EvaluateExpression(ctx context.Context, expression string) (string, error) {
	command := fmt.Sprintf("-data-evaluate-expression %s", quoteCString(expression))
	result, execErr := b.execute(ctx, command, 0, true)
	if resolveErr := resolveCommand(result, execErr); resolveErr != nil {
		return "", resolveErr
	}
	return result.payload().FieldStr("value"), nil
}

// Variables lists local variables and arguments for a frame. An empty
// threadID means the current thread. Requires a paused program.
func (b *Bridge) Variables(ctx context.Context, threadID string, frame int) ([]Variable, error) {
	var sb strings.Builder
	sb.WriteString("-stack-list-variables")
	if threadID != "" {
		fmt.Fprintf(&sb, " --thread %s", threadID)
	}
	fmt.Fprintf(&sb, " --frame %d --simple-values", frame)

	result, execErr := b.execute(ctx, sb.String(), 0, true)
	if resolveErr := resolveCommand(result, execErr); resolveErr != nil {
		return nil, resolveErr
	}

	var variables []Variable
	for _, item := range result.payload().Field("variables").Items() {
		variables = append(variables, Variable{
			Name:  item.FieldStr("name"),
			Type:  item.FieldStr("type"),
			Value: item.FieldStr("value"),
		})
	}
	return variables, nil
}

// Registers reports the named registers and their values for the current
// thread. Requires a paused program.
func (b *Bridge) Registers(ctx context.Context) ([]Variable, error) {
	names, namesErr := b.execute(ctx, "-data-list-register-names", 0, true)
	if resolveErr := resolveCommand(names, namesErr); resolveErr != nil {
		return nil, resolveErr
	}
	values, valuesErr := b.execute(ctx, "-data-list-register-values x", 0, true)
	if resolveErr := resolveCommand(values, valuesErr); resolveErr != nil {
		return nil, resolveErr
	}

	nameByIndex := make(map[string]string)
	for i, item := range names.payload().Field("register-names").Items() {
		if item.Str() != "" {
			nameByIndex[fmt.Sprintf("%d", i)] = item.Str()
		}
	}

	var registers []Variable
	for _, item := range values.payload().Field("register-values").Items() {
		number := item.FieldStr("number")
		name, known := nameByIndex[number]
		if !known {
			continue
		}
		registers = append(registers, Variable{
			Name:  name,
			Value: item.FieldStr("value"),
		})
	}
	return registers, nil
}

// resolveCommand folds a transport error and a debugger-level error result
// into a single Go error for operations with typed return values. Raw
// Execute keeps "^error" as data; typed operations cannot, so it becomes an
// error here.
func resolveCommand(result CommandResult, execErr error) error {
	if execErr != nil {
		return execErr
	}
	if result.Status == "error" {
		return fmt.Errorf("debugger rejected %q: %s", result.Command, result.Message)
	}
	return nil
}

func breakpointFromTuple(v Value) Breakpoint {
	return Breakpoint{
		Number:    v.FieldStr("number"),
		Type:      v.FieldStr("type"),
		Enabled:   v.FieldStr("enabled") == "y",
		Address:   v.FieldStr("addr"),
		Function:  v.FieldStr("func"),
		File:      v.FieldStr("file"),
		Line:      v.FieldStr("line"),
		Condition: v.FieldStr("cond"),
		HitCount:  v.FieldStr("times"),
		Temporary: v.FieldStr("disp") == "del",
	}
}
