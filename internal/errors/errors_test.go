// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("execute: %w", Wrap(StreamDesync, "reading header", io.ErrUnexpectedEOF))

	if !stderrors.Is(err, StreamDesync) {
		t.Fatalf("errors.Is(StreamDesync) = false for %v", err)
	}
	if stderrors.Is(err, SessionBusy) {
		t.Fatalf("errors.Is(SessionBusy) = true for %v", err)
	}
	if !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("wrapped cause lost: %v", err)
	}
	if !stderrors.Is(err, New(StreamDesync, "other message")) {
		t.Fatalf("*E target with same kind should match")
	}
}

func TestKindOfAndFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  Kind
		fatal bool
	}{
		{name: "nil", err: nil, kind: "", fatal: false},
		{name: "plain", err: io.EOF, kind: "", fatal: false},
		{name: "busy", err: New(SessionBusy, "x"), kind: SessionBusy, fatal: false},
		{name: "malformed", err: Newf(MalformedResponse, "bad %d", 1), kind: MalformedResponse, fatal: false},
		{name: "desync", err: fmt.Errorf("w: %w", New(StreamDesync, "x")), kind: StreamDesync, fatal: true},
		{name: "terminated", err: New(SessionTerminated, "x"), kind: SessionTerminated, fatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			if got := Fatal(tt.err); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	if got := New(SessionBusy, "execute in flight").Error(); got != "session_busy: execute in flight" {
		t.Errorf("Error() = %q", got)
	}
	if got := Wrap(ExecutableNotFound, "ampl", io.EOF).Error(); got != "executable_not_found: ampl: EOF" {
		t.Errorf("Error() = %q", got)
	}
}
