// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render prints AMPL output and decoded values to the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"iampl/cli/internal/display"
	"iampl/cli/internal/entity"
	"iampl/cli/internal/protocol"

	"github.com/pterm/pterm"
)

// errorCommands are the frame commands AMPL uses for diagnostics.
var errorCommands = map[string]bool{"error": true, "syntax_error": true}

// Echo returns a sink that writes frame bodies to w as they arrive. Diagnostics are
// highlighted.
func Echo(w io.Writer) protocol.Sink {
	errStyle := pterm.NewStyle(pterm.FgRed)
	return func(f protocol.Frame) {
		if f.Body == "" {
			return
		}
		if errorCommands[f.Command] || strings.HasPrefix(f.Command, "error") {
			fmt.Fprint(w, errStyle.Sprint(f.Body))
			return
		}
		fmt.Fprint(w, f.Body)
	}
}

// Value renders a decoded display result. Scalars print as "name = value"; sets and
// mappings print as tables with one column per key component.
func Value(res display.Result) (string, error) {
	if res.Shape == display.ShapeScalar {
		return fmt.Sprintf("%s = %s\n", res.Name, display.Number(res.Scalar).String()), nil
	}

	header := make([]string, 0, res.KeyCols+1)
	for i := 0; i < res.KeyCols; i++ {
		header = append(header, fmt.Sprintf("key%d", i+1))
	}
	if res.KeyCols == 1 {
		header[0] = "key"
	}
	data := pterm.TableData{}

	switch res.Shape {
	case display.ShapeKeySet:
		data = append(data, header)
		for _, k := range res.Keys {
			data = append(data, append([]string{}, k...))
		}
	case display.ShapeMapping:
		data = append(data, append(header, res.Name))
		for _, e := range res.Entries {
			data = append(data, append(append([]string{}, e.Key...), e.Value.String()))
		}
	}

	title := pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprintf("%s (%s, %d)", res.Name, res.Shape, res.Len())
	if res.Len() == 0 {
		return title + "\n  (empty)\n", nil
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return "", err
	}
	return title + "\n" + table + "\n", nil
}

// Entities renders entity handles as a name/class table.
func Entities(list []*entity.Entity) (string, error) {
	if len(list) == 0 {
		return pterm.NewStyle(pterm.FgGray).Sprint("No entities defined") + "\n", nil
	}
	data := pterm.TableData{{"Name", "Class"}}
	for _, e := range list {
		data = append(data, []string{e.Name, e.Class.Label()})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}
