// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"fmt"
	"strings"
)

// IsMICommand reports whether the command text is a structured MI command
// (leading "-") as opposed to a plain CLI command a human would type.
func IsMICommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "-")
}

// WrapCLICommand wraps a plain CLI command with -interpreter-exec so its
// console output is captured in the MI stream and its completion produces a
// token-correlated result record.
func WrapCLICommand(text string) string {
	return fmt.Sprintf("-interpreter-exec console %s", quoteCString(text))
}

// RenderCommand produces the raw wire line for a command: CLI commands are
// wrapped first, the correlation token is prefixed, and the trailing newline
// required by the wire format is appended.
func RenderCommand(text string, token uint64) string {
	cmd := strings.TrimSpace(text)
	if !IsMICommand(cmd) {
		cmd = WrapCLICommand(cmd)
	}
	return fmt.Sprintf("%d%s\n", token, cmd)
}

// quoteCString renders a string as a double-quoted MI string constant.
func quoteCString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
