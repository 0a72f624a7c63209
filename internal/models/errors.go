package models

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed requests (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthRejected represents missing, invalid, or disabled credentials (401/403)
	ErrorTypeAuthRejected ErrorType = "auth_rejected"
	// ErrorTypeQuotaExceeded represents an exhausted monthly quota (429);
	// permanent for the current billing period, retryable next period
	ErrorTypeQuotaExceeded ErrorType = "quota_exceeded"
	// ErrorTypeDataInconsistency represents a stored record missing an
	// expected field; never silently patched (500)
	ErrorTypeDataInconsistency ErrorType = "data_inconsistency"
	// ErrorTypeTransientStore represents store contention or connectivity
	// failures the caller may retry (503)
	ErrorTypeTransientStore ErrorType = "transient_store"
	// ErrorTypeConfiguration represents store or identity-provider
	// unavailability at startup (500)
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeInternal represents unexpected internal errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError is a structured application error carrying both the public
// message returned to callers and the internal cause kept for logs.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthRejected:
		return http.StatusForbidden
	case ErrorTypeQuotaExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
	}
}

// NewAuthRejectedError creates a credential-rejection error with an
// explicit status (401 for missing credentials, 403 for invalid/disabled).
func NewAuthRejectedError(message string, statusCode int) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthRejected,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  false,
	}
}

// NewQuotaExceededError creates a quota-exhaustion error
func NewQuotaExceededError() *AppError {
	return &AppError{
		Type:       ErrorTypeQuotaExceeded,
		Message:    "Usage limit exceeded.",
		StatusCode: http.StatusTooManyRequests,
		Retryable:  false,
	}
}

// NewDataInconsistencyError creates an error for corrupted stored records
func NewDataInconsistencyError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDataInconsistency,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewTransientStoreError creates a retryable store error
func NewTransientStoreError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransientStore,
		Message:    "A transient database error occurred. Please try again.",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewConfigurationError creates a startup-configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    "Internal Server Error.",
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// SanitizeError strips internal detail from an error before it is
// returned to a caller. Internal-class errors keep only a generic public
// message; unknown errors collapse to a generic 500.
func SanitizeError(err error) *AppError {
	appErr, ok := err.(*AppError)
	if !ok {
		return NewInternalError(err)
	}

	message := appErr.Message
	switch appErr.Type {
	case ErrorTypeDataInconsistency, ErrorTypeConfiguration, ErrorTypeInternal:
		message = "Internal Server Error."
	}

	return &AppError{
		Type:       appErr.Type,
		Message:    message,
		StatusCode: appErr.GetStatusCode(),
		Retryable:  appErr.Retryable,
	}
}
