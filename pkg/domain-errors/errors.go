// Package domainerrors provides coded errors shared by services, stores and
// transports.
//
// A code classifies the failure for callers (retry, re-fetch, report, fix
// configuration). The message is safe for direct display: guard reasons are
// carried verbatim and never replaced with a generic text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeConfiguration marks an unknown stage or guard. Fatal at startup,
	// never retried at request time.
	CodeConfiguration Code = "configuration_error"
	// CodeValidation marks malformed input (fee heads, witnesses, statuses).
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks a request that cannot be decoded or is missing
	// required identifiers.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks an identifier that failed to parse.
	CodeInvalidInput Code = "invalid_input"
	// CodeGuardRejected marks a business rule that is not yet satisfied.
	CodeGuardRejected Code = "guard_rejected"
	// CodeNoSuchTransition marks a target stage that has no edge from the
	// current stage.
	CodeNoSuchTransition Code = "no_such_transition"
	// CodeConcurrentModification marks a lost optimistic-concurrency race.
	CodeConcurrentModification Code = "concurrent_modification"
	// CodeTerminalState marks an attempt to mutate a finalized deed or a
	// closed or rejected case.
	CodeTerminalState Code = "terminal_state_violation"
	CodeNotFound      Code = "not_found"
	CodeTimeout       Code = "timeout"
	CodeInternal      Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a display-ready message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Message returns the outermost display message, falling back to err.Error().
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Is is errors.Is re-exported so callers importing this package for codes do
// not also need the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
