package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a backend failure. Backend-native errors are
// never leaked upward; drivers translate them into this taxonomy at the
// boundary.
type ErrorKind string

const (
	// ErrTransient marks network/timeout-class failures that are safe to
	// retry locally.
	ErrTransient ErrorKind = "transient"
	// ErrConflict marks a duplicate-key write whose payload matched the
	// existing record. Callers normalize it to success.
	ErrConflict ErrorKind = "conflict"
	// ErrInconsistent marks a duplicate-key write whose payload differed
	// from the existing record. Never retried.
	ErrInconsistent ErrorKind = "inconsistent"
	// ErrSchemaViolation marks fatal constraint or shape violations.
	// Never retried.
	ErrSchemaViolation ErrorKind = "schema_violation"
	// ErrUnsupported marks an operation outside the driver's declared
	// roles.
	ErrUnsupported ErrorKind = "unsupported_operation"
	// ErrUnavailable marks an unreachable backend. Counts against the
	// driver's health; not retried inside a commit.
	ErrUnavailable ErrorKind = "unavailable"
	// ErrTimeout marks a driver call abandoned by the caller's deadline.
	ErrTimeout ErrorKind = "timeout"
)

// Error is a classified backend failure.
type Error struct {
	Kind    ErrorKind
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Backend, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps a backend-native error with its classification.
func NewError(kind ErrorKind, backend, op string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Op: op, Err: err}
}

// Unsupported builds the error returned for operations outside a
// driver's declared roles.
func Unsupported(backend, op string) *Error {
	return &Error{Kind: ErrUnsupported, Backend: backend, Op: op}
}

// KindOf extracts the classification from err, following wrap chains.
// Context cancellation and deadline errors classify as Timeout even when
// a driver forgot to translate them. Unclassified errors report
// ErrTransient so an unknown failure is retried rather than dropped.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	return ErrTransient
}

// IsTransient reports whether err should be retried locally.
func IsTransient(err error) bool { return KindOf(err) == ErrTransient }

// IsUnavailable reports whether err should count against driver health.
func IsUnavailable(err error) bool { return KindOf(err) == ErrUnavailable }

// IsConflict reports whether err is an idempotent duplicate.
func IsConflict(err error) bool { return KindOf(err) == ErrConflict }
