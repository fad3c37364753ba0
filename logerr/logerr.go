// Package logerr defines the error taxonomy shared by the logging engine.
// Every failure is scoped to a single record or operation; callers decide
// whether to reject, re-prompt or merely warn.
package logerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// Format covers malformed tagged fields, missing tokens, wrong token
	// lengths and unparsable dates or times.
	Format Kind = iota + 1
	// Validation covers locators or callsigns outside their allowed alphabets.
	Validation
	// Mismatch reports a grid precision that disagrees with the active contest.
	Mismatch
	// Lookup reports a band or mode token outside the canonical vocabulary.
	Lookup
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format"
	case Validation:
		return "validation"
	case Mismatch:
		return "configuration mismatch"
	case Lookup:
		return "lookup"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the engine packages.
type Error struct {
	Kind  Kind
	Field string
	Value string
	// Blocking is meaningful for Mismatch only: false means the condition is a
	// warning and the operation still produced a usable result.
	Blocking bool
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Kind == Mismatch && !e.Blocking {
		msg = e.Kind.String() + " warning"
	}
	if e.Field != "" {
		msg += " in " + e.Field
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (%q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Formatf builds a Format error.
func Formatf(field, value, format string, args ...any) *Error {
	return &Error{Kind: Format, Field: field, Value: value, Err: fmt.Errorf(format, args...)}
}

// Invalid builds a Validation error wrapping cause.
func Invalid(field, value string, cause error) *Error {
	return &Error{Kind: Validation, Field: field, Value: value, Err: cause}
}

// Unknown builds a Lookup error wrapping cause.
func Unknown(field, value string, cause error) *Error {
	return &Error{Kind: Lookup, Field: field, Value: value, Err: cause}
}

// Warning builds a non-blocking Mismatch.
func Warning(field, value, format string, args ...any) *Error {
	return &Error{Kind: Mismatch, Field: field, Value: value, Err: fmt.Errorf(format, args...)}
}

// Blocking builds a blocking Mismatch.
func Blocking(field, value, format string, args ...any) *Error {
	return &Error{Kind: Mismatch, Field: field, Value: value, Blocking: true, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or anything it wraps) is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsWarning reports whether err is a non-blocking configuration mismatch.
func IsWarning(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == Mismatch && !e.Blocking
}
