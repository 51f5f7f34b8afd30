// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"strconv"
	"strings"
)

// ParseLine parses one newline-terminated line of MI output into a Record.
// Malformed input (unrecognized sigil, unterminated quote or bracket) yields
/// a RecordUnknown rather than an error: the stream legitimately contains
// noise (banner text, warnings) before and between structured records.
func ParseLine(raw string) Record {
	line := strings.TrimRight(raw, "\r\n")
	if line == "" || line == "(gdb)" || line == "(gdb) " {
		return unknownRecord(line)
	}

	p := &parser{s: line}

	token, hasToken := p.parseToken()

	var kind RecordKind
	switch p.peek() {
	case '^':
		kind = RecordResult
	case '*':
		kind = RecordExecAsync
	case '+':
		kind = RecordStatusAsync
	case '=':
		kind = RecordNotifyAsync
	case '~':
		kind = RecordConsoleStream
	case '@':
		kind = RecordTargetStream
	case '&':
		kind = RecordLogStream
	default:
		return unknownRecord(line)
	}
	p.pos++

	if kind.IsStream() {
		// Stream records carry a single quoted string and no class or token.
		if hasToken {
			return unknownRecord(line)
		}
		text, ok := p.parseCString()
		if !ok || !p.atEnd() {
			return unknownRecord(line)
		}
		return Record{Kind: kind, Payload: StringValue(text)}
	}

	class := p.parseClass()
	if class == "" {
		return unknownRecord(line)
	}

	payload, ok := p.parseResultPairs()
	if !ok || !p.atEnd() {
		return unknownRecord(line)
	}

	return Record{
		Kind:     kind,
		Token:    token,
		HasToken: hasToken,
		Class:    class,
		Payload:  payload,
	}
}

func unknownRecord(line string) Record {
	return Record{Kind: RecordUnknown, Payload: StringValue(line)}
}

type parser struct {
	s   string
	pos int
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.s)
}

func (p *parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.s[p.pos]
}

// parseToken consumes an optional leading run of digits.
func (p *parser) parseToken() (uint64, bool) {
	start := p.pos
	for !p.atEnd() && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, false
	}
	token, err := strconv.ParseUint(p.s[start:p.pos], 10, 64)
	if err != nil {
		// Digit run too long to be a real token; treat the line as noise.
		p.pos = start
		return 0, false
	}
	return token, true
}

// parseClass consumes the result/async class: everything up to "," or EOL.
func (p *parser) parseClass() string {
	start := p.pos
	for !p.atEnd() && p.s[p.pos] != ',' {
		p.pos++
	}
	return p.s[start:p.pos]
}

// parseResultPairs consumes ",key=value" repetitions into a tuple Value.
// Yields an empty tuple when the record has no payload.
func (p *parser) parseResultPairs() (Value, bool) {
	fields := make(map[string]Value)
	for !p.atEnd() {
		if p.peek() != ',' {
			return Value{}, false
		}
		p.pos++

		key, val, ok := p.parseKeyValue()
		if !ok {
			return Value{}, false
		}
		// GDB occasionally repeats a key; the first occurrence wins.
		if _, exists := fields[key]; !exists {
			fields[key] = val
		}
	}
	return TupleValue(fields), true
}

func (p *parser) parseKeyValue() (string, Value, bool) {
	key := p.parseKey()
	if key == "" || p.peek() != '=' {
		return "", Value{}, false
	}
	p.pos++

	val, ok := p.parseValue()
	return key, val, ok
}

func (p *parser) parseKey() string {
	start := p.pos
	for !p.atEnd() {
		c := p.s[p.pos]
		if c == '=' || c == ',' || c == '{' || c == '[' || c == '}' || c == ']' || c == '"' {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) parseValue() (Value, bool) {
	switch p.peek() {
	case '"':
		s, ok := p.parseCString()
		return StringValue(s), ok
	case '{':
		return p.parseTuple()
	case '[':
		return p.parseList()
	default:
		return Value{}, false
	}
}

func (p *parser) parseTuple() (Value, bool) {
	p.pos++ // consume '{'
	fields := make(map[string]Value)

	if p.peek() == '}' {
		p.pos++
		return TupleValue(fields), true
	}

	for {
		key, val, ok := p.parseKeyValue()
		if !ok {
			return Value{}, false
		}
		if _, exists := fields[key]; !exists {
			fields[key] = val
		}

		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return TupleValue(fields), true
		default:
			return Value{}, false
		}
	}
}

func (p *parser) parseList() (Value, bool) {
	p.pos++ // consume '['
	items := []Value{}

	if p.peek() == ']' {
		p.pos++
		return ListValue(items), true
	}

	for {
		var item Value
		var ok bool

		// List elements are either plain values or key=value results;
		// the latter are represented as single-entry tuples.
		switch p.peek() {
		case '"', '{', '[':
			item, ok = p.parseValue()
		default:
			var key string
			var val Value
			key, val, ok = p.parseKeyValue()
			if ok {
				item = TupleValue(map[string]Value{key: val})
			}
		}
		if !ok {
			return Value{}, false
		}
		items = append(items, item)

		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return ListValue(items), true
		default:
			return Value{}, false
		}
	}
}

// parseCString consumes a double-quoted string with C-style escapes.
func (p *parser) parseCString() (string, bool) {
	if p.peek() != '"' {
		return "", false
	}
	p.pos++

	var sb strings.Builder
	for !p.atEnd() {
		c := p.s[p.pos]
		p.pos++

		switch c {
		case '"':
			return sb.String(), true
		case '\\':
			if p.atEnd() {
				return "", false
			}
			esc := p.s[p.pos]
			p.pos++
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'f':
				sb.WriteByte('\f')
			case 'b':
				sb.WriteByte('\b')
			case 'a':
				sb.WriteByte('\a')
			case 'v':
				sb.WriteByte('\v')
			case '\\', '"', '\'':
				sb.WriteByte(esc)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				// Up to three octal digits, the first already consumed.
				val := int(esc - '0')
				for i := 0; i < 2 && !p.atEnd(); i++ {
					d := p.s[p.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val*8 + int(d-'0')
					p.pos++
				}
				sb.WriteByte(byte(val))
			default:
				// Unrecognized escape: keep the character as-is.
				sb.WriteByte(esc)
			}
		default:
			sb.WriteByte(c)
		}
	}

	// Unterminated quote.
	return "", false
}
