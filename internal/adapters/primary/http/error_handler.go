package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/lorrc/restaurant-relay/internal/adapters/primary/http/middleware"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return mw.GetRequestID(ctx)
}

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse includes field-level validation errors
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error and writes the appropriate HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.logError(r, http.StatusUnprocessableEntity, err)
		writeJSONError(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:  "Validation failed",
			Code:   apperrors.CodeValidation,
			Fields: validationErrs.Errors,
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		h.logError(r, appErr.StatusCode, appErr.Err)
		writeJSONError(w, appErr.StatusCode, ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		})
		return
	}

	statusCode, response := mapDomainError(err)
	h.logError(r, statusCode, err)
	writeJSONError(w, statusCode, response)
}

// mapDomainError converts relay errors to HTTP status codes and responses
func mapDomainError(err error) (int, ErrorResponse) {
	code := apperrors.Code(err)

	switch code {
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized, ErrorResponse{Error: "Authentication required", Code: code}
	case apperrors.CodeInvalidCredential:
		return http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Code: code}
	case apperrors.CodeDomainMismatch:
		return http.StatusForbidden, ErrorResponse{Error: "Role is not allowed to use the relay", Code: code}
	case apperrors.CodeForbidden:
		return http.StatusForbidden, ErrorResponse{
			Error: "You do not have permission to perform this action",
			Code:  code,
		}
	case apperrors.CodeUnknownResource:
		return http.StatusNotFound, ErrorResponse{Error: "Resource not found", Code: code}
	case apperrors.CodeBadRequest, apperrors.CodeUnknownAction:
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: code}
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many requests. Please try again later.",
			Code:  code,
		}
	case apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable, ErrorResponse{Error: "Relay is shutting down", Code: code}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "An unexpected error occurred",
			Code:  apperrors.CodeInternal,
		}
	}
}

// logError logs the error with appropriate context
func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error) {
	logAttrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	switch {
	case statusCode >= 500:
		h.logger.ErrorContext(r.Context(), "server error", logAttrs...)
	case statusCode >= 400:
		h.logger.WarnContext(r.Context(), "client error", logAttrs...)
	default:
		h.logger.InfoContext(r.Context(), "request error", logAttrs...)
	}
}

func writeJSONError(w http.ResponseWriter, statusCode int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// HandleError Helper function to handle errors inline in handlers
// Usage: if HandleError(w, r, err, h.errorHandler) { return }
func HandleError(w http.ResponseWriter, r *http.Request, err error, handler *ErrorHandler) bool {
	if err != nil {
		handler.Handle(w, r, err)
		return true
	}
	return false
}
