package model

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUpstreamError     = errors.New("upstream error")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrInvalidSession    = errors.New("invalid session")
	ErrMutationInFlight  = errors.New("cart mutation already in flight")
	ErrMethodNotAllowed  = errors.New("method not allowed")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewMethodNotAllowedError creates a 405 error naming the accepted method.
func NewMethodNotAllowedError(method, allowed string) *APIError {
	return &APIError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Method not allowed",
		Details:    fmt.Sprintf("%s is not supported, use %s", method, allowed),
		StatusCode: http.StatusMethodNotAllowed,
		Err:        ErrMethodNotAllowed,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewUpstreamStatusError creates a 502 error for a non-2xx upstream reply.
// The upstream message, when present, is kept for the caller.
func NewUpstreamStatusError(service string, status int, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s returned %d: %s", service, status, message),
		StatusCode: http.StatusBadGateway,
		Err:        ErrUpstreamError,
	}
}

// NewMalformedUpstreamError creates a 502 error for an upstream body that is
// not JSON. The snippet is shown to the client as details.
func NewMalformedUpstreamError(service, snippet string) *APIError {
	return &APIError{
		Code:       "MALFORMED_UPSTREAM_RESPONSE",
		Message:    fmt.Sprintf("Invalid JSON response from %s", service),
		Details:    snippet,
		StatusCode: http.StatusBadGateway,
		Err:        ErrMalformedResponse,
	}
}

// NewInvalidSessionError creates a 401 error for a session the backend rejected.
func NewInvalidSessionError(message string) *APIError {
	return &APIError{
		Code:       "INVALID_SESSION",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrInvalidSession,
	}
}

// NewProxyError creates a 500 error for a proxy route that could not reach
// or read its upstream.
func NewProxyError(service string, err error) *APIError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &APIError{
		Code:       "PROXY_ERROR",
		Message:    fmt.Sprintf("Failed to proxy %s request", service),
		Details:    details,
		StatusCode: http.StatusInternalServerError,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		Details:    details,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// Truncate shortens s to at most n bytes for diagnostics, backing off to a
// rune boundary so the result stays valid UTF-8.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
