// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package gdbmi

import (
	"encoding/json"
	"sort"
	"strings"
)

// ValueKind discriminates the variants of a Value.
type ValueKind uint8

const (
	// ValueInvalid is the zero Value, present in no payload.
	ValueInvalid ValueKind = iota
	// ValueString is a quoted string constant.
	ValueString
	// ValueTuple is a brace-delimited mapping from keys to Values.
	ValueTuple
	// ValueList is a bracket-delimited ordered sequence of Values.
	ValueList
)

// Value is one node of an MI payload: a string, a tuple (mapping), or a list,
// mirroring the protocol's own nested-value grammar. Values are immutable
// once constructed.
type Value struct {
	kind  ValueKind
	str   string
	tuple map[string]Value
	list  []Value
}

func StringValue(s string) Value {
	return Value{kind: ValueString, str: s}
}

func TupleValue(fields map[string]Value) Value {
	return Value{kind: ValueTuple, tuple: fields}
}

func ListValue(items []Value) Value {
	return Value{kind: ValueList, list: items}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) IsZero() bool {
	return v.kind == ValueInvalid
}

// Str returns the string content, or "" when the Value is not a string.
func (v Value) Str() string {
	return v.str
}

// Field looks up a key in a tuple Value. Returns the zero Value when the key
// is absent or the Value is not a tuple, so lookups chain safely.
func (v Value) Field(key string) Value {
	if v.kind != ValueTuple {
		return Value{}
	}
	return v.tuple[key]
}

// FieldStr returns the string content of a tuple field, or "" when the field
// is absent or not a string.
func (v Value) FieldStr(key string) string {
	return v.Field(key).Str()
}

// Items returns the elements of a list Value.
func (v Value) Items() []Value {
	return v.list
}

// Len returns the number of list elements or tuple fields.
func (v Value) Len() int {
	switch v.kind {
	case ValueList:
		return len(v.list)
	case ValueTuple:
		return len(v.tuple)
	default:
		return 0
	}
}

// Keys returns the tuple keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != ValueTuple {
		return nil
	}
	keys := make([]string, 0, len(v.tuple))
	for k := range v.tuple {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders the Value as the natural JSON shape for its variant:
// strings as JSON strings, tuples as objects, lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueTuple:
		return json.Marshal(v.tuple)
	case ValueList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// String renders the Value back in MI syntax. Tuple keys are emitted in
// sorted order, so the rendering is deterministic but not necessarily
// byte-identical to the original input.
func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v Value) render(sb *strings.Builder) {
	switch v.kind {
	case ValueString:
		sb.WriteString(quoteCString(v.str))
	case ValueTuple:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			v.tuple[k].render(sb)
		}
		sb.WriteByte('}')
	case ValueList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.render(sb)
		}
		sb.WriteByte(']')
	}
}
