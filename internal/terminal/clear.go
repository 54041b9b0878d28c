// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal wraps the few tty queries the CLI needs.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or 80 when stdout is not a terminal.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// LinesUsed returns how many rows text of the given length occupies at width.
func LinesUsed(textLength, width int) int {
	if width <= 0 {
		width = 80
	}
	n := (textLength + width - 1) / width
	if n < 1 {
		n = 1
	}
	return n
}

// ClearPreviousLines erases a prompt and the user's answer after Enter was pressed,
// so secrets typed at a prompt do not stay on screen.
func ClearPreviousLines(textLength int) {
	clearLines(os.Stdout, LinesUsed(textLength, Width())+1)
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}

// ReadSecret reads a line without echo when stdin is a terminal.
func ReadSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	return string(b), err
}
