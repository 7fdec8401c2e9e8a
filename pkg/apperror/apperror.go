package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// FieldError describes a single invalid field in a request payload.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the application-level error type every service returns. Handlers map
// it onto the HTTP response envelope; anything that is not an *Error surfaces
// as a 500.
type Error struct {
	Status  int          `json:"-"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logging/wrapping purposes.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func Validation(fields []FieldError) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "one or more fields are invalid", Fields: fields}
}

func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: message}
}

// NotFound is returned both for missing records and for records outside the
// caller's branch scope, so cross-branch probing cannot learn what exists.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func Upstream(message string, cause error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "UPSTREAM_FAILED", Message: message, cause: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: message, cause: cause}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status an error maps to, defaulting to 500.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
