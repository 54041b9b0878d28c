// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure surfaced by the AMPL driver carries a machine-readable Kind so callers
// can tell a recoverable request failure (busy session, malformed display response)
// from a fatal session failure (stream desynchronisation, terminated child).
//
// Kinds compare with the standard library: errors.Is(err, SessionBusy) reports whether
// any *E in the chain carries that kind.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ExecutableNotFound indicates the AMPL executable could not be located or launched.
	ExecutableNotFound Kind = "executable_not_found"
	// SessionBusy indicates a request was made while another one was outstanding.
	SessionBusy Kind = "session_busy"
	// NotStarted indicates a request was made before the child process was started.
	NotStarted Kind = "not_started"
	// MalformedResponse indicates a response body did not match the expected grammar.
	MalformedResponse Kind = "malformed_response"
	// StreamDesync indicates the framed stream is misaligned or ended prematurely.
	StreamDesync Kind = "stream_desync"
	// SessionTerminated indicates the session can no longer be used.
	SessionTerminated Kind = "session_terminated"
	// Interrupted indicates the request was cut short by an interrupt.
	Interrupted Kind = "interrupted"
	// StaleEntity indicates an entity handle was superseded by a later refresh.
	StaleEntity Kind = "stale_entity"
	// UnknownEntity indicates no entity with the requested name is known.
	UnknownEntity Kind = "unknown_entity"
	// ConfigInvalid indicates the configuration failed validation.
	ConfigInvalid Kind = "config_invalid"
	// ExportFailed indicates values could not be written to the export database.
	ExportFailed Kind = "export_failed"
)

// Error makes a bare Kind usable as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *E) Unwrap() error { return e.Err }

// Is matches either a Kind or another *E with the same Kind.
func (e *E) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *E:
		return e.Kind == t.Kind
	}
	return false
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf formats the message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Fatal reports whether err leaves the session unusable.
func Fatal(err error) bool {
	switch KindOf(err) {
	case StreamDesync, SessionTerminated:
		return true
	}
	return false
}
