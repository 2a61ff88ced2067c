package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationTriggerTime  ErrorCode = "validation_invalid_trigger_time"
	ErrCodeValidationTimezone     ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationReportTime   ErrorCode = "validation_invalid_report_time"
	ErrCodeValidationDelay        ErrorCode = "validation_invalid_delay"

	// Not Found (404)
	ErrCodeNotFoundHabit      ErrorCode = "not_found_habit"
	ErrCodeNotFoundConnection ErrorCode = "not_found_connection"
	ErrCodeNotFoundStatus     ErrorCode = "not_found_followup_status"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeInternalCipher     ErrorCode = "internal_cipher_error"
	ErrCodeUpstreamMessaging  ErrorCode = "upstream_messaging_unavailable"
	ErrCodeUpstreamThrottled  ErrorCode = "upstream_messaging_throttled"
	ErrCodeCircuitOpen        ErrorCode = "upstream_circuit_open"
	ErrCodeCredentialInvalid  ErrorCode = "upstream_credential_invalid"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the inbound action surface to translate AppErrors into HTTP
// responses. Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUpstreamThrottled):
		return http.StatusTooManyRequests // 429
	case s == string(ErrCodeCredentialInvalid):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the engine.
// All domain errors should be expressed as AppError to enable consistent
// error formatting, retryability classification, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
