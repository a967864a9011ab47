package domain

import (
	"fmt"
	"net/http"
)

// Error is the service-level error type. Code is an UPPER_SNAKE identifier
// exposed in API responses, Status the HTTP status the API layer maps it to.
// Err, when set, is the wrapped cause and participates in errors.Is/As.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// WithCause returns a copy of the error wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	dup := *e
	dup.Err = cause
	return &dup
}

// WithMessage returns a copy of the error with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	dup := *e
	dup.Message = msg
	return &dup
}

// The error taxonomy. Each constructor returns a fresh value so callers can
// attach causes and messages without racing on shared state.
func ErrInvalidAPIKey() *Error {
	return &Error{Code: "INVALID_API_KEY", Message: "invalid or missing API key", Status: http.StatusUnauthorized}
}

func ErrTenantInactive() *Error {
	return &Error{Code: "TENANT_INACTIVE", Message: "tenant account is deactivated", Status: http.StatusUnauthorized}
}

func ErrInvalidSession() *Error {
	return &Error{Code: "INVALID_SESSION", Message: "session not found or not accessible", Status: http.StatusNotFound}
}

func ErrSessionEnded() *Error {
	return &Error{Code: "SESSION_ENDED", Message: "session is no longer active", Status: http.StatusConflict}
}

func ErrDocumentNotFound() *Error {
	return &Error{Code: "DOCUMENT_NOT_FOUND", Message: "knowledge document not found", Status: http.StatusNotFound}
}

func ErrUnsupportedFileType() *Error {
	return &Error{Code: "UNSUPPORTED_FILE_TYPE", Message: "file type is not supported for ingestion", Status: http.StatusBadRequest}
}

func ErrValidation() *Error {
	return &Error{Code: "VALIDATION_ERROR", Message: "request validation failed", Status: http.StatusBadRequest}
}

func ErrRateLimited() *Error {
	return &Error{Code: "RATE_LIMITED", Message: "too many requests", Status: http.StatusTooManyRequests}
}

func ErrModelUnavailable() *Error {
	return &Error{Code: "MODEL_UNAVAILABLE", Message: "language model providers are unavailable", Status: http.StatusServiceUnavailable}
}

func ErrVectorStoreUnavailable() *Error {
	return &Error{Code: "VECTOR_STORE_UNAVAILABLE", Message: "vector store is unavailable", Status: http.StatusServiceUnavailable}
}

func ErrTimeout() *Error {
	return &Error{Code: "UPSTREAM_TIMEOUT", Message: "upstream call timed out", Status: http.StatusGatewayTimeout}
}

func ErrInternal() *Error {
	return &Error{Code: "INTERNAL_ERROR", Message: "internal server error", Status: http.StatusInternalServerError}
}
