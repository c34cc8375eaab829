// Package apperror defines the error taxonomy shared by the domain packages.
// Handlers translate a Kind into an HTTP status and a Code into a stable
// machine-readable identifier.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and presentation.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidState      Kind = "INVALID_STATE"
	KindForbidden         Kind = "FORBIDDEN"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindExternalEvaluator Kind = "EXTERNAL_EVALUATION_FAILURE"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindConflict          Kind = "CONFLICT"
	KindInternal          Kind = "INTERNAL"
)

// Error is a classified domain error. Two Errors compare equal under
// errors.Is when their codes match, so sentinels survive wrapping with
// extra detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New creates a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause as its underlying error.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// Withf returns a copy of e with a formatted message suffix.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message + ": " + fmt.Sprintf(format, args...),
		Err:     e.Err,
	}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Generic sentinels used across packages.
var (
	ErrNotFound   = New(KindNotFound, "NOT_FOUND", "resource not found")
	ErrForbidden  = New(KindForbidden, "FORBIDDEN", "access to this resource is not allowed")
	ErrConflict   = New(KindConflict, "CONFLICT", "the resource was modified concurrently, retry the request")
	ErrValidation = New(KindValidation, "VALIDATION_ERROR", "validation failed")
)
