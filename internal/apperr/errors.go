// Package apperr defines the coded error taxonomy shared by every layer.
// Handlers map codes to HTTP statuses; services return them synchronously so
// callers can drive user-visible feedback (reload on stale state, etc).
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies one error category.
type Code string

const (
	// CodeForbidden: the actor's roles do not include the role that holds
	// the request's current stage.
	CodeForbidden Code = "forbidden"
	// CodeAlreadyFinal: transition attempted on a completed/rejected request.
	CodeAlreadyFinal Code = "already_final"
	// CodeStaleState: expected version did not match the stored version at
	// write time; another transition already applied.
	CodeStaleState Code = "stale_state"
	// CodeInvalidRemarks: reject submitted with empty remarks.
	CodeInvalidRemarks Code = "invalid_remarks"

	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message while keeping the chain intact.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, reason string) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
