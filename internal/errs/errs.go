// Package errs holds the domain error taxonomy shared by services and handlers.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both absent resources and resources owned by another
	// organization; callers must not be able to tell the two apart.
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation error")
	// ErrConflict is returned when an operation would break a domain invariant.
	ErrConflict = errors.New("conflict")
	// ErrUpstream wraps failures of external collaborators.
	ErrUpstream = errors.New("upstream failure")
)

// ErrTicketNotFound is the message-bearing NotFound returned for ticket lookups.
var ErrTicketNotFound = &Error{Kind: ErrNotFound, Message: "ticket not found"}

// Error pairs a taxonomy kind with a message safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error   { return newf(ErrNotFound, format, args...) }
func Forbidden(format string, args ...any) error  { return newf(ErrForbidden, format, args...) }
func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }
func Conflict(format string, args ...any) error   { return newf(ErrConflict, format, args...) }

// Upstream keeps the collaborator's message so it can be surfaced as is.
func Upstream(err error) error {
	return &Error{Kind: ErrUpstream, Message: err.Error()}
}

// Message returns the caller-facing text of err, falling back to the kind.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
