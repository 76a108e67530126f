package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a structured API error with a stable machine-readable
// code. The Message is safe to return to callers; the wrapped cause is for
// diagnostics only and must never reach a response body.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches APIErrors by error code, so a WithCause copy still compares
// equal to its sentinel under errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.ErrorCode == e.ErrorCode
}

// WithCause returns a copy of the error carrying a diagnostic cause.
// The sentinel itself stays untouched so errors.Is comparisons keep working.
func (e *APIError) WithCause(err error) *APIError {
	clone := *e
	clone.Err = err
	return &clone
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// Predefined errors for the verification and enrollment flows.
// Messages are the exact caller-facing strings; handlers render them
// verbatim in the response body.
var (
	// 400 Bad Request
	ErrMissingParameters = New(http.StatusBadRequest, "MISSING_PARAMETERS", "Missing parameters")
	ErrInvalidRequest    = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request")

	// 401 Unauthorized
	ErrInvalidKey = New(http.StatusUnauthorized, "INVALID_KEY", "Invalid product key")

	// 403 Forbidden
	ErrDeviceBanned    = New(http.StatusForbidden, "DEVICE_BANNED", "This device has been banned")
	ErrUserBanned      = New(http.StatusForbidden, "USER_BANNED", "This user has been banned")
	ErrKeyInactive     = New(http.StatusForbidden, "KEY_INACTIVE", "This product key is not active")
	ErrDeviceMismatch  = New(http.StatusForbidden, "DEVICE_MISMATCH", "This product key is already in use on another device")
	ErrOwnerRegistered = New(http.StatusForbidden, "USER_REGISTERED_ELSEWHERE", "This user is already registered on another device")

	// 500 Internal Server Error
	ErrServerError = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Server error")
)

// ServerError wraps an internal failure into the generic 500 response.
// The cause is retained for logging but hidden from the caller.
func ServerError(err error) *APIError {
	return ErrServerError.WithCause(err)
}

// AsAPIError extracts an APIError from an error chain. If the chain carries
// none, the error is downgraded to the generic server error so that internal
// failure details never propagate to a response.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ServerError(err)
}
