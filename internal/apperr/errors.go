package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an application error for callers and the HTTP layer.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeNotAuthorized     Code = "NOT_AUTHORIZED"
	CodeAlreadyDecided    Code = "ALREADY_DECIDED"
	CodeAlreadyBatched    Code = "ALREADY_BATCHED"
	CodeNoEligibleRecords Code = "NO_ELIGIBLE_RECORDS"
	CodeTerminalState     Code = "TERMINAL_STATE"
	CodeInternal          Code = "INTERNAL"
)

// Error is a coded application error. Business failures carry a message safe
// to return to the caller; internal failures wrap the cause for server-side
// logging while the HTTP layer returns a generic message.
type Error struct {
	ErrCode Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{ErrCode: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{ErrCode: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{ErrCode: code, Message: message, Cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{ErrCode: CodeNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, reason string) *Error {
	return &Error{ErrCode: CodeValidation, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.ErrCode
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message for an error chain. Internal
// errors collapse to a generic message; full detail stays in the logs.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.ErrCode != CodeInternal {
		return appErr.Message
	}
	return "internal error"
}
