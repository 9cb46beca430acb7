// Package errors defines the application error taxonomy and its mapping to
// HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrUnauthenticated is returned when the request carries no usable bearer credential
	ErrUnauthenticated = "unauthenticated"

	// ErrNotFound is returned when a resource id or version does not exist
	ErrNotFound = "not_found"

	// ErrGone is returned when a resource id has been deleted (tombstoned)
	ErrGone = "gone"

	// ErrInvalid is returned when a request body or parameter is malformed
	ErrInvalid = "invalid"

	// ErrUpstream is returned when a pod operation fails; callers log it and move on
	ErrUpstream = "upstream"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUnauthenticatedError creates a new unauthenticated error
func NewUnauthenticatedError(message string, cause error) *Error {
	return NewError(ErrUnauthenticated, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewGoneError creates a new gone error
func NewGoneError(message string, cause error) *Error {
	return NewError(ErrGone, message, cause)
}

// NewInvalidError creates a new invalid request error
func NewInvalidError(message string, cause error) *Error {
	return NewError(ErrInvalid, message, cause)
}

// NewUpstreamError creates a new upstream (pod) error
func NewUpstreamError(message string, cause error) *Error {
	return NewError(ErrUpstream, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsType checks if err is an *Error of the given type.
func IsType(err error, errorType string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// HTTPStatus maps an error to the HTTP status code it should be reported as.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrGone:
		return http.StatusGone
	case ErrInvalid:
		return http.StatusBadRequest
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
