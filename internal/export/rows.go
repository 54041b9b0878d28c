// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package export

import (
	"time"

	"iampl/cli/internal/display"

	"github.com/google/uuid"
)

// Row is one exported value. Scalars have an empty key; set members have neither
// a number nor a text value.
type Row struct {
	RunID      uuid.UUID
	Entity     string
	Class      string
	Key        []string
	Num        *float64
	Text       *string
	ExportedAt time.Time
}

// Flatten turns a decoded display result into rows.
func Flatten(runID uuid.UUID, name, class string, res display.Result, at time.Time) []Row {
	base := Row{RunID: runID, Entity: name, Class: class, ExportedAt: at}
	switch res.Shape {
	case display.ShapeScalar:
		r := base
		r.Key = []string{}
		v := res.Scalar
		r.Num = &v
		return []Row{r}
	case display.ShapeKeySet:
		rows := make([]Row, 0, len(res.Keys))
		for _, k := range res.Keys {
			r := base
			r.Key = append([]string{}, k...)
			rows = append(rows, r)
		}
		return rows
	}
	rows := make([]Row, 0, len(res.Entries))
	for _, e := range res.Entries {
		r := base
		r.Key = append([]string{}, e.Key...)
		switch e.Value.Kind {
		case display.ValueNumber:
			v := e.Value.Num
			r.Num = &v
		case display.ValueText:
			v := e.Value.Text
			r.Text = &v
		}
		rows = append(rows, r)
	}
	return rows
}
