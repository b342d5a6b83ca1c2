// Package apperrors defines the error taxonomy of the query pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a standardized internal error code.
type ErrorCode string

const (
	ErrCodeInterpretation      ErrorCode = "INTERPRETATION_FAILURE"
	ErrCodeResolution          ErrorCode = "RESOLUTION_FAILURE"
	ErrCodeParameterValidation ErrorCode = "PARAMETER_VALIDATION_FAILURE"
	ErrCodeRemoteFetch         ErrorCode = "REMOTE_FETCH_FAILURE"
	ErrCodeRemoteAuthorization ErrorCode = "REMOTE_AUTHORIZATION_FAILURE"
	ErrCodeAggregation         ErrorCode = "AGGREGATION_FAILURE"
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured application error.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinel values like
// &Error{Code: ErrCodeAggregation} work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code that wraps cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with details set.
func (e *Error) WithDetails(details string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// CodeOf extracts the code from err, or ErrCodeInternal when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}
