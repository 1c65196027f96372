package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent relay rule violations
var (
	// Connection admission (fatal to the handshake)
	ErrUnauthenticated   = errors.New("credential is missing")
	ErrInvalidCredential = errors.New("credential is invalid or expired")
	ErrDomainMismatch    = errors.New("role does not map to a trust domain")

	// Per-action (reported to the originating connection only)
	ErrForbidden       = errors.New("action forbidden")
	ErrUnknownResource = errors.New("resource not found")
	ErrBadRequest      = errors.New("bad request")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnknownAction   = errors.New("unknown action type")

	// Lifecycle
	ErrConnectionClosed = errors.New("connection is closed")
	ErrRelayStopped     = errors.New("relay is shut down")

	// Generic
	ErrInternal = errors.New("internal server error")
)

// Machine-readable codes shared by HTTP responses and websocket error frames.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeInvalidCredential = "INVALID_CREDENTIAL"
	CodeDomainMismatch    = "DOMAIN_MISMATCH"
	CodeForbidden         = "FORBIDDEN"
	CodeUnknownResource   = "UNKNOWN_RESOURCE"
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnknownAction     = "UNKNOWN_ACTION"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError wraps errors with additional context for responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrBadRequest, err),
		Message:    message,
		Code:       CodeBadRequest,
		StatusCode: 400,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       CodeForbidden,
		StatusCode: 403,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       CodeRateLimited,
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       CodeInternal,
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// OrNil returns v as an error when it holds any field error, nil otherwise.
func (v *ValidationErrors) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}

// Code maps an error onto its machine-readable code.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	var validationErrs *ValidationErrors
	if errors.As(err, &validationErrs) {
		return CodeValidation
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrInvalidCredential):
		return CodeInvalidCredential
	case errors.Is(err, ErrDomainMismatch):
		return CodeDomainMismatch
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnknownResource):
		return CodeUnknownResource
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, ErrRelayStopped), errors.Is(err, ErrConnectionClosed):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// IsConnectionFatal reports whether err must reject a connection attempt.
func IsConnectionFatal(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrDomainMismatch)
}
