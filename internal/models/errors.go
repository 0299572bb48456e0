// Package models defines the persistent entities, wire shapes and error taxonomy of the API.
package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies an AppError and determines its HTTP status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

// Status maps the kind to its HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case KindBadRequest:
		return fiber.StatusBadRequest
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindTooManyRequests:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// Title is the short label sent in the "error" field of the response body.
func (k ErrorKind) Title() string {
	switch k {
	case KindBadRequest:
		return "Bad Request"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	case KindTooManyRequests:
		return "Too Many Requests"
	default:
		return "Internal Server Error"
	}
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	// Title overrides Kind.Title() for endpoints with a fixed wire contract.
	Title string
	Err   error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error.
func (e *AppError) Status() int {
	return e.Kind.Status()
}

// Response renders the error as its wire body. Details are only filled when exposeDetails is set.
func (e *AppError) Response(exposeDetails bool) ErrorResponse {
	title := e.Title
	if title == "" {
		title = e.Kind.Title()
	}
	resp := ErrorResponse{
		Error:   title,
		Code:    e.Code,
		Message: e.Message,
	}
	if exposeDetails && e.Err != nil {
		resp.Details = e.Err.Error()
	}
	return resp
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Kind:    KindBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

func NewBadRequestError(code, message string) *AppError {
	return &AppError{
		Kind:    KindBadRequest,
		Code:    code,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Kind:    KindForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

func NewTooManyRequestsError(message string) *AppError {
	return &AppError{
		Kind:    KindTooManyRequests,
		Code:    "RATE_LIMITED",
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Err:     err,
	}
}

// WithCode returns a copy of the error carrying a different stable code.
func (e *AppError) WithCode(code string) *AppError {
	cp := *e
	cp.Code = code
	return &cp
}

// WithTitle returns a copy of the error with a fixed "error" label.
func (e *AppError) WithTitle(title string) *AppError {
	cp := *e
	cp.Title = title
	return &cp
}

// AsAppError unwraps err into an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// ExposeErrorDetails controls whether the underlying cause of an error is sent to clients.
// It is switched off in production at startup.
var ExposeErrorDetails = true

// RespondWithError creates a standardized error response. A zero status derives it from the error kind.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	appErr := AsAppError(err)
	if status == 0 {
		status = appErr.Status()
	}
	return c.Status(status).JSON(appErr.Response(ExposeErrorDetails))
}

// RespondWithAppError writes err using the status of its kind.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, 0, err)
}
