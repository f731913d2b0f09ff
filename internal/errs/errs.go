// Package errs defines the error taxonomy shared by the coordination core.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery and surfacing decisions.
type Kind int

const (
	// KindValidation indicates malformed input. Never retried.
	KindValidation Kind = iota
	// KindNotFound indicates an unknown identifier.
	KindNotFound
	// KindConflict indicates a state-machine violation such as a double
	// assignment. Callers may retry on a later tick.
	KindConflict
	// KindAuthorization indicates a wallet mismatch.
	KindAuthorization
	// KindAuthentication indicates a failed admission proof.
	KindAuthentication
	// KindTimeout indicates a suspension exceeded its bound.
	KindTimeout
	// KindState indicates an operation against a record in the wrong state.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindAuthentication:
		return "authentication"
	case KindTimeout:
		return "timeout"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error carries a kind alongside a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Validation reports malformed input.
func Validation(format string, args ...any) error {
	return New(KindValidation, format, args...)
}

// NotFound reports an unknown identifier.
func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

// Conflict reports a state-machine violation.
func Conflict(format string, args ...any) error {
	return New(KindConflict, format, args...)
}

// Authorization reports a caller acting on a record it does not own.
func Authorization(format string, args ...any) error {
	return New(KindAuthorization, format, args...)
}

// Authentication reports a failed admission proof.
func Authentication(format string, args ...any) error {
	return New(KindAuthentication, format, args...)
}

// Timeout reports a bounded wait that expired.
func Timeout(format string, args ...any) error {
	return New(KindTimeout, format, args...)
}

// State reports an operation against a record in the wrong state.
func State(format string, args ...any) error {
	return New(KindState, format, args...)
}

// KindOf extracts the kind of an error, or -1 for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Kind(-1)
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
