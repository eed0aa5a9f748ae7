// Package errors provides the structured error taxonomy used at the
// adapter and HTTP boundaries. Errors are classified where they are
// produced; callers dispatch on type, never on message text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an application error.
type ErrorType string

const (
	// ErrorTypeValidation indicates a malformed or out-of-bounds request.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUpstreamTransient indicates a retryable upstream failure
	// (network error, 5xx, typed upstream error).
	ErrorTypeUpstreamTransient ErrorType = "upstream_transient"
	// ErrorTypeUpstreamQuota indicates a quota-class upstream rejection
	// (CAPTCHA, HTTP 429, quota exhausted).
	ErrorTypeUpstreamQuota ErrorType = "upstream_quota"
	// ErrorTypeBreakerOpen indicates a fail-fast rejection while a
	// circuit breaker is open.
	ErrorTypeBreakerOpen ErrorType = "breaker_open"
	// ErrorTypeTimeout indicates a wall-clock deadline was exceeded.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal indicates an unexpected internal failure.
	ErrorTypeInternal ErrorType = "internal"
)

// AppError is a typed application error with an HTTP status mapping.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	Cause      error
	StatusCode int
}

// New creates an AppError of the given type.
func New(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Message:    message,
		StatusCode: statusCodeFor(errorType),
	}
}

// Newf creates an AppError with a formatted message.
func Newf(errorType ErrorType, format string, args ...interface{}) *AppError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap wraps an underlying error with a type and message.
func Wrap(cause error, errorType ErrorType, message string) *AppError {
	err := New(errorType, message)
	err.Cause = cause
	return err
}

// Wrapf wraps an underlying error with a formatted message.
func Wrapf(cause error, errorType ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, errorType, fmt.Sprintf(format, args...))
}

// WithDetails attaches free-form details to the error, in place.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted details to the error, in place.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func statusCodeFor(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrorTypeUpstreamTransient:
		return http.StatusBadGateway
	case ErrorTypeUpstreamQuota:
		return http.StatusTooManyRequests
	case ErrorTypeBreakerOpen:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GetType returns the ErrorType of err, or ErrorTypeInternal when err is
// not an AppError.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errorType
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }

// IsTransient reports whether err is a retryable upstream error.
func IsTransient(err error) bool { return IsType(err, ErrorTypeUpstreamTransient) }

// IsQuota reports whether err is a quota-class upstream error.
func IsQuota(err error) bool { return IsType(err, ErrorTypeUpstreamQuota) }

// IsBreakerOpen reports whether err is a breaker fail-fast rejection.
func IsBreakerOpen(err error) bool { return IsType(err, ErrorTypeBreakerOpen) }

// IsTimeout reports whether err is a wall-clock timeout.
func IsTimeout(err error) bool { return IsType(err, ErrorTypeTimeout) }

// NewValidationError creates a validation error with the given message.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewTimeoutError creates a timeout error for the given operation.
func NewTimeoutError(operation string) *AppError {
	return Newf(ErrorTypeTimeout, "%s timed out", operation)
}

// NewQuotaError creates a quota-class upstream error.
func NewQuotaError(upstream string) *AppError {
	return Newf(ErrorTypeUpstreamQuota, "%s quota exceeded", upstream)
}

// GetStatusCode returns the HTTP status code for err, defaulting to 500.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// SafeErrorMessage returns a message suitable for an HTTP response body.
// Validation and timeout messages pass through; everything else is
// replaced with a generic message so internals never leak to callers.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeTimeout:
		return appErr.Message
	case ErrorTypeUpstreamQuota:
		return "Upstream quota exceeded"
	case ErrorTypeBreakerOpen:
		return "Service temporarily unavailable"
	default:
		return "An internal error occurred"
	}
}

// Chain combines multiple errors into one, skipping nils. A single
// surviving error is returned as-is.
func Chain(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}
	msg := nonNil[0].Error()
	for _, err := range nonNil[1:] {
		msg += " -> " + err.Error()
	}
	return Wrap(nonNil[0], GetType(nonNil[0]), msg)
}

// LogFields returns structured logging fields describing err.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error": err.Error(),
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		fields["error_type"] = string(appErr.Type)
		fields["status_code"] = appErr.StatusCode
		if appErr.Details != "" {
			fields["error_details"] = appErr.Details
		}
		if appErr.Cause != nil {
			fields["underlying_error"] = appErr.Cause.Error()
		}
	}
	return fields
}
