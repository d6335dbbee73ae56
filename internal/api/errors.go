// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/backend"
	"github.com/profile-desk/backend/internal/export"
	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/session"
	"github.com/profile-desk/backend/internal/store"
)

// ShowErrorDetails includes the underlying error text in 5xx responses.
var ShowErrorDetails = true

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewBadGatewayError creates a 502 error for extraction service failures
func NewBadGatewayError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BAD_GATEWAY",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil && ShowErrorDetails {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// mapError translates domain errors into API errors.
func mapError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "session not found"}
	case errors.Is(err, store.ErrFileNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "file not found"}
	case errors.Is(err, store.ErrResultNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "result not found"}
	case errors.Is(err, store.ErrNotificationNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "notification not found"}
	case errors.Is(err, store.ErrNotSubmittable), errors.Is(err, store.ErrJobAlreadyAssigned):
		return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: "file was already submitted for extraction", Details: err.Error()}
	case errors.Is(err, store.ErrInvalidView):
		return NewValidationError("view", err)
	case errors.Is(err, inspect.ErrFileType), errors.Is(err, inspect.ErrFileSize), errors.Is(err, inspect.ErrEmpty):
		return NewValidationError("files", err)
	case errors.Is(err, export.ErrUnknownFormat):
		return NewBadRequestError("unsupported export format", err)
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError("too many active sessions")
	case errors.As(err, &statusErr):
		return NewBadGatewayError("extraction service rejected the request", err)
	}
	return nil
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := mapError(err)
	if apiErr == nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			apiErr = &APIError{
				Status:  he.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", he.Message),
			}
		} else {
			apiErr = NewInternalError("An unexpected error occurred", err)
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("error", eris.ToString(err, false)))
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
