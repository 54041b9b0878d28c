// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package display decodes the bodies returned by AMPL `_display` statements into a
// tagged Result: a scalar, a set of keys, or a keyed mapping.
package display

import (
	"strconv"
	"strings"
)

// Shape enumerates the variants of Result.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeKeySet
	ShapeMapping
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeKeySet:
		return "set"
	case ShapeMapping:
		return "mapping"
	}
	return "unknown"
}

// Key addresses one element of an indexed entity. Single keys have one component;
// composite keys keep their components in column order.
type Key []string

// ParseKey splits a comma-separated key as typed on the command line.
// Surrounding whitespace of each component is dropped.
func ParseKey(s string) Key {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = strings.TrimSpace(p)
	}
	return k
}

// String renders the components joined by commas, the form they arrive in.
func (k Key) String() string { return strings.Join(k, ",") }

// Subscript renders the key as an AMPL subscript, e.g. `['a', 2]`. Numeric components
// are left bare; everything else becomes a single-quoted literal with embedded quotes
// doubled.
func (k Key) Subscript() string {
	if len(k) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range k {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(literal(c))
	}
	b.WriteByte(']')
	return b.String()
}

func literal(s string) string {
	if isNumeral(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// isNumeral accepts plain decimal notation only; "Inf" or "0x10" are symbolic members.
func isNumeral(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789+-.eE", c) {
			return false
		}
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Equal reports whether two keys have the same components.
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// ValueKind tags the content of a Value.
type ValueKind int

const (
	ValueAbsent ValueKind = iota
	ValueNumber
	ValueText
)

// Value is the data column of one mapping row.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

// Number wraps a float.
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// Text wraps raw text.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// parseValue keeps text that is not a number as it arrived; AMPL sets and symbolic
// parameters hold non-numeric members.
func parseValue(s string) Value {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return Number(f)
	}
	return Text(s)
}

// Any returns the value as float64, string or nil.
func (v Value) Any() any {
	switch v.Kind {
	case ValueNumber:
		return v.Num
	case ValueText:
		return v.Text
	}
	return nil
}

func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case ValueText:
		return v.Text
	}
	return ""
}

// Entry is one row of a mapping.
type Entry struct {
	Key   Key
	Value Value
}

// Result is the decoded form of a display response. Exactly one of the variant fields
// is meaningful, selected by Shape.
type Result struct {
	Shape Shape
	// Name is the entity name echoed back by AMPL.
	Name    string
	Scalar  float64
	Keys    []Key
	Entries []Entry
	// KeyCols and DataCols are the column counts declared in the header.
	KeyCols  int
	DataCols int
}

// Len returns the number of members: 1 for scalars.
func (r Result) Len() int {
	switch r.Shape {
	case ShapeKeySet:
		return len(r.Keys)
	case ShapeMapping:
		return len(r.Entries)
	}
	return 1
}

// Lookup returns the value stored under key in a mapping.
func (r Result) Lookup(key Key) (Value, bool) {
	for _, e := range r.Entries {
		if e.Key.Equal(key) {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Contains reports whether key is a member of a key set or a mapping.
func (r Result) Contains(key Key) bool {
	for _, k := range r.Keys {
		if k.Equal(key) {
			return true
		}
	}
	_, ok := r.Lookup(key)
	return ok
}

// Members returns the first key component of every member, in order. Entity class
// listings such as `_PARS` decode to single-column sets, so this is their name list.
func (r Result) Members() []string {
	var out []string
	switch r.Shape {
	case ShapeKeySet:
		for _, k := range r.Keys {
			if len(k) > 0 {
				out = append(out, k[0])
			}
		}
	case ShapeMapping:
		for _, e := range r.Entries {
			if len(e.Key) > 0 {
				out = append(out, e.Key[0])
			}
		}
	}
	return out
}

// AsMap converts the result into plain maps and slices suitable for structpb and JSON.
func (r Result) AsMap() map[string]any {
	m := map[string]any{
		"name":  r.Name,
		"shape": r.Shape.String(),
	}
	switch r.Shape {
	case ShapeScalar:
		m["value"] = r.Scalar
	case ShapeKeySet:
		keys := make([]any, 0, len(r.Keys))
		for _, k := range r.Keys {
			keys = append(keys, keyAny(k))
		}
		m["keys"] = keys
	case ShapeMapping:
		entries := make([]any, 0, len(r.Entries))
		for _, e := range r.Entries {
			entries = append(entries, map[string]any{
				"key":   keyAny(e.Key),
				"value": e.Value.Any(),
			})
		}
		m["entries"] = entries
	}
	return m
}

func keyAny(k Key) []any {
	out := make([]any, len(k))
	for i, c := range k {
		out[i] = c
	}
	return out
}
