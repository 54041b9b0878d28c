// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"strings"

	"iampl/cli/internal/errors"

	"github.com/pterm/pterm"
)

// FormatSessionError renders err as a user-facing panel chosen by its error kind.
func FormatSessionError(err error) string {
	if err == nil {
		return ""
	}

	var builder strings.Builder
	kind := errors.KindOf(err)

	title := "Error"
	switch kind {
	case errors.ExecutableNotFound:
		title = "AMPL Not Found"
		builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
		builder.WriteString("\n\n")
		builder.WriteString("The AMPL executable could not be started.\n")
		builder.WriteString("  • Install AMPL and make sure it is on your PATH\n")
		builder.WriteString("  • Or point iampl at it with --ampl or ampl.path in config.yaml\n")
	case errors.StreamDesync, errors.SessionTerminated:
		title = "AMPL Session Lost"
		builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
		builder.WriteString("\n\n")
		builder.WriteString("The connection to the AMPL process can no longer be used.\n")
		builder.WriteString("This usually happens when:\n")
		builder.WriteString("  • AMPL exited or was killed\n")
		builder.WriteString("  • AMPL was not started in -g mode\n")
		builder.WriteString("  • An interrupt had to be escalated to a kill\n")
	case errors.Interrupted:
		title = "Interrupted"
		builder.WriteString(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint(title))
		builder.WriteString("\n\n")
		builder.WriteString("The running statement was interrupted; the session is still usable.\n")
	case errors.MalformedResponse:
		title = "Unexpected Response"
		builder.WriteString(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint(title))
		builder.WriteString("\n\n")
		builder.WriteString("AMPL answered a display query in an unexpected format.\n")
	default:
		builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
		builder.WriteString("\n")
	}

	if errors.Fatal(err) {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Start a new session to continue"))
		builder.WriteString("\n")
	}

	builder.WriteString("\n")
	builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Details: " + Mask(err.Error())))
	return builder.String()
}

// PresentSessionError writes err to w, as a panel when it carries an error kind and as
// a single masked line otherwise.
func PresentSessionError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if errors.KindOf(err) == "" {
		fmt.Fprintln(w, PresentError("", err))
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, FormatSessionError(err))
	fmt.Fprintln(w)
}
