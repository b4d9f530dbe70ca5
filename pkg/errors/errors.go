package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. Write paths surface these
// synchronously; read paths recover from timeouts with partial results.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewValidation reports malformed input. Field names the offending field so
// producers can fix their payloads without guessing.
func NewValidation(field, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: http.StatusBadRequest, Message: message, Field: field}
}

// NewNotFound reports an unknown id.
func NewNotFound(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInvalidTransition reports an illegal alert status change.
func NewInvalidTransition(from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Code:    http.StatusConflict,
		Message: fmt.Sprintf("cannot transition alert from %s to %s", from, to),
	}
}

// NewConflict reports a concurrent update that lost the race.
func NewConflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Code: http.StatusConflict, Message: message}
}

// NewTimeout reports a read-path latency bound being exceeded.
func NewTimeout(operation string) *AppError {
	return &AppError{
		Kind:    KindTimeout,
		Code:    http.StatusGatewayTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
	}
}

// NewInternal wraps an unexpected failure.
func NewInternal(message string) *AppError {
	return &AppError{Kind: KindInternal, Code: http.StatusInternalServerError, Message: message}
}

// WithDetails returns a copy of the error with details attached.
func (e *AppError) WithDetails(details string) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// GetStatusCode returns the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
