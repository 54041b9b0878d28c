// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"bytes"
	"testing"

	"iampl/cli/internal/display"
	"iampl/cli/internal/entity"
	"iampl/cli/internal/protocol"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"
)

func init() {
	pterm.DisableStyling()
}

func TestEchoWritesBodies(t *testing.T) {
	var buf bytes.Buffer
	sink := Echo(&buf)
	sink(protocol.Frame{Command: "print", Body: "x = 1\n"})
	sink(protocol.Frame{Command: "error", Body: "x is not defined\n"})
	sink(protocol.Frame{Command: "print"})
	require.Equal(t, "x = 1\nx is not defined\n", buf.String())
}

func TestValueScalar(t *testing.T) {
	res, err := display.Decode("_display 0 0 1\ntotal\n8.5\n")
	require.NoError(t, err)
	out, err := Value(res)
	require.NoError(t, err)
	require.Equal(t, "total = 8.5\n", out)
}

func TestValueMapping(t *testing.T) {
	res, err := display.Decode("_display 2 1 2\ncost\na,x,1.5\nb,y,north\n")
	require.NoError(t, err)
	out, err := Value(res)
	require.NoError(t, err)
	require.Contains(t, out, "cost (mapping, 2)")
	require.Contains(t, out, "key1")
	require.Contains(t, out, "north")
	require.Contains(t, out, "1.5")
}

func TestValueEmptySet(t *testing.T) {
	res, err := display.Decode("_display 1 0 0\nS\n")
	require.NoError(t, err)
	out, err := Value(res)
	require.NoError(t, err)
	require.Contains(t, out, "(empty)")
}

func TestEntities(t *testing.T) {
	out, err := Entities(nil)
	require.NoError(t, err)
	require.Contains(t, out, "No entities")

	out, err = Entities([]*entity.Entity{{Name: "cost", Class: entity.Parameter}})
	require.NoError(t, err)
	require.Contains(t, out, "cost")
	require.Contains(t, out, "param")
}
