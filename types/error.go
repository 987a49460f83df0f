package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

const (
	// ErrConfigInvalid covers malformed options: non-positive context window,
	// minimums exceeding ceilings, negative reservations.
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrModelNotFound indicates an unknown model identifier.
	ErrModelNotFound ErrorCode = "MODEL_NOT_FOUND"
	// ErrTokenizerError indicates the pluggable token counter failed.
	// Counter failures are propagated, never masked: an undercount would
	// break every downstream budget guarantee.
	ErrTokenizerError ErrorCode = "TOKENIZER_ERROR"
	// ErrContextOverflow is reserved for callers that choose to treat an
	// over-limit best-effort result as fatal. The core itself reports
	// overflow as a result state, not an error.
	ErrContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
