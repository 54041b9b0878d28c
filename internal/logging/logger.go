// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// ParseLevel maps a config level name to a pterm log level.
func ParseLevel(raw string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return pterm.LogLevelTrace, nil
	case "debug":
		return pterm.LogLevelDebug, nil
	case "", "info":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	case "off", "disabled":
		return pterm.LogLevelDisabled, nil
	}
	return pterm.LogLevelInfo, fmt.Errorf("unknown log level %q", raw)
}

// New returns a structured logger writing to w (stderr when nil). Output on stdout is
// reserved for AMPL echo and results.
func New(level pterm.LogLevel, w io.Writer) *pterm.Logger {
	if w == nil {
		w = os.Stderr
	}
	return pterm.DefaultLogger.
		WithLevel(level).
		WithWriter(w).
		WithTime(level <= pterm.LogLevelDebug)
}

// Discard returns a logger that drops everything. Used as the default in library
// packages and tests.
func Discard() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled).WithWriter(io.Discard)
}
