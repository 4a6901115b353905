package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies storage failures.
type ErrorKind string

const (
	ErrNotFound    ErrorKind = "not_found"
	ErrConflict    ErrorKind = "conflict"
	ErrUnavailable ErrorKind = "unavailable"
)

// Error is the typed failure a backend surfaces to the core. Backends must
// use these kinds so callers can classify without knowing the engine.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a not-found error.
func NotFound(msg string) *Error { return &Error{Kind: ErrNotFound, Message: msg} }

// Conflict builds a uniqueness-violation error.
func Conflict(msg string) *Error { return &Error{Kind: ErrConflict, Message: msg} }

// IsNotFound reports whether err is a storage not-found failure.
func IsNotFound(err error) bool { return hasKind(err, ErrNotFound) }

// IsConflict reports whether err is a storage uniqueness violation.
func IsConflict(err error) bool { return hasKind(err, ErrConflict) }

func hasKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
