package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStaleVersion      = errors.New("stale version")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("temporarily unavailable")
)

// ValidationError reports a malformed or out-of-range request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SlotError reports that a requested interval cannot be booked.
// ConflictID is set when an existing appointment is in the way.
type SlotError struct {
	Reason     string
	ConflictID string
}

func (e *SlotError) Error() string {
	if e.ConflictID != "" {
		return fmt.Sprintf("slot unavailable: %s (appointment %s)", e.Reason, e.ConflictID)
	}
	return "slot unavailable: " + e.Reason
}

func (e *SlotError) Unwrap() error { return ErrSlotUnavailable }

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type StaleVersionError struct {
	Expected int64
	Actual   int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("stale version: expected %d, current %d", e.Expected, e.Actual)
}

func (e *StaleVersionError) Unwrap() error { return ErrStaleVersion }

// UnavailableError is a transient failure. Nothing was applied.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return e.Op + ": temporarily unavailable"
	}
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Err}
}

func Unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindSlotUnavailable   ErrorKind = "slot_unavailable"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindStaleVersion      ErrorKind = "stale_version"
	KindNotFound          ErrorKind = "not_found"
	KindUnavailable       ErrorKind = "unavailable"
	KindInternal          ErrorKind = "internal"
)

// Kind classifies err. A nil error has no kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSlotUnavailable):
		return KindSlotUnavailable
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrStaleVersion):
		return KindStaleVersion
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the same request may simply be sent again.
// Stale versions need a re-read first and are not retryable as-is.
func IsRetryable(err error) bool {
	return Kind(err) == KindUnavailable
}
