// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package display

import (
	"fmt"
	"strconv"
	"strings"

	"iampl/cli/internal/errors"
)

// Query returns the statement that displays name, or one element of it when key is
// non-empty.
func Query(name string, key Key) string {
	return "_display " + name + key.Subscript() + ";"
}

// header is the first line of a display body: "<command> <nkeycols> <ndatacols> <nrows>".
type header struct {
	command  string
	keyCols  int
	dataCols int
	rows     int
}

func parseHeader(line string) (header, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return header{}, errors.Newf(errors.MalformedResponse, "display header %q: want 4 fields, got %d", line, len(fields))
	}
	h := header{command: fields[0]}
	for i, dst := range []*int{&h.keyCols, &h.dataCols, &h.rows} {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil || n < 0 {
			return header{}, errors.Newf(errors.MalformedResponse, "display header %q: field %d is not a non-negative integer", line, i+2)
		}
		*dst = n
	}
	return h, nil
}

// Decode parses the body of a `_display` response.
//
// The shape follows the header: no key columns is a scalar; key columns without data
// columns is a set; anything else is a mapping whose value is kept only when there is
// exactly one data column.
func Decode(body string) (Result, error) {
	headLine, rest, ok := strings.Cut(body, "\n")
	if !ok {
		return Result{}, errors.Newf(errors.MalformedResponse, "display body has no name line: %q", truncate(body, 80))
	}
	h, err := parseHeader(headLine)
	if err != nil {
		return Result{}, err
	}
	name, data, _ := strings.Cut(rest, "\n")

	res := Result{Name: name, KeyCols: h.keyCols, DataCols: h.dataCols}

	if h.keyCols == 0 {
		text := strings.TrimSpace(data)
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Result{}, errors.Wrap(errors.MalformedResponse, fmt.Sprintf("scalar %s: value %q", name, truncate(text, 40)), err)
		}
		res.Shape = ShapeScalar
		res.Scalar = f
		return res, nil
	}

	rows := splitRows(data, h.rows)
	need := h.keyCols + h.dataCols
	if h.dataCols == 0 {
		res.Shape = ShapeKeySet
		seen := make(map[string]struct{}, len(rows))
		for i, row := range rows {
			cols := strings.Split(row, ",")
			if len(cols) < need {
				return Result{}, rowError(name, i, row, need, len(cols))
			}
			k := Key(cols[:h.keyCols])
			id := strings.Join(k, "\x00")
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			res.Keys = append(res.Keys, k)
		}
		return res, nil
	}

	res.Shape = ShapeMapping
	res.Entries = make([]Entry, 0, len(rows))
	for i, row := range rows {
		cols := strings.Split(row, ",")
		if len(cols) < need {
			return Result{}, rowError(name, i, row, need, len(cols))
		}
		e := Entry{Key: Key(cols[:h.keyCols:h.keyCols])}
		if h.dataCols == 1 {
			e.Value = parseValue(cols[h.keyCols])
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

// splitRows returns at most n data lines. The newline that terminates the last row
// does not start another one.
func splitRows(data string, n int) []string {
	if n == 0 || data == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(data, "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

func rowError(name string, i int, row string, need, got int) error {
	return errors.Newf(errors.MalformedResponse, "%s row %d %q: want at least %d columns, got %d", name, i+1, truncate(row, 60), need, got)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
