package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure returned by the circulation core
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindConflict     ErrorKind = "CONFLICT"
	KindInvalidState ErrorKind = "INVALID_STATE"
	KindUnavailable  ErrorKind = "UNAVAILABLE"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindBusy         ErrorKind = "BUSY"
	KindInternal     ErrorKind = "INTERNAL"
)

// Error is the typed error every caller-facing operation returns
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when the target carries no message,
// so errors.Is(err, domain.ErrConflict) works for every conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// Kind sentinels
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrUnavailable  = &Error{Kind: KindUnavailable}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrBusy         = &Error{Kind: KindBusy}
)

// Errorf builds a typed error with a formatted message
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Common messages reused across services
var (
	ErrWorkNotFound        = &Error{Kind: KindNotFound, Message: "work not found"}
	ErrCopyNotFound        = &Error{Kind: KindNotFound, Message: "copy not found"}
	ErrMemberNotFound      = &Error{Kind: KindNotFound, Message: "member not found"}
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Message: "transaction not found"}
	ErrReservationNotFound = &Error{Kind: KindNotFound, Message: "reservation not found"}
	ErrNothingToReturn     = &Error{Kind: KindNotFound, Message: "no open issue for this work, copy and member"}
)
