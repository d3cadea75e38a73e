package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for retry decisions. Validation,
// conflict and not-found failures are never retried; auth failures get
// exactly one refresh-and-retry; network and overload failures are
// retried with capped exponential backoff.
type ErrorCode string

const (
	CodeValidation ErrorCode = "validation_error"
	CodeAuth       ErrorCode = "auth_error"
	CodeNetwork    ErrorCode = "network_error"
	CodeOverload   ErrorCode = "server_overload"
	CodeConflict   ErrorCode = "conflict"
	CodeNotFound   ErrorCode = "not_found"
	CodeInternal   ErrorCode = "internal_error"
)

// Error is a classified domain failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error with a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(code ErrorCode, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the classification of err, or CodeInternal if it is
// not a domain error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the failure class is transient.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeOverload:
		return true
	}
	return false
}
