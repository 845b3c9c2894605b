package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError. The HTTP layer maps them to statuses.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
	CodeOperationFailed = "OPERATION_FAILED"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is a domain failure with a stable code. Err, when set, is
// reported as details.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func coded(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NewNotFoundError(resource string, id any) *AppError {
	return coded(CodeNotFound, fmt.Sprintf("%s %v not found", resource, id))
}

// NewNotFoundMessage builds a NOT_FOUND error with a caller supplied message.
func NewNotFoundMessage(message string) *AppError { return coded(CodeNotFound, message) }

func NewValidationError(message string) *AppError { return coded(CodeValidation, message) }

func NewUnauthorizedError(message string) *AppError { return coded(CodeUnauthorized, message) }

func NewConflictError(message string) *AppError { return coded(CodeConflict, message) }

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// NewOperationError wraps a store failure for the named operation. Only the
// message of the cause survives; its type is discarded.
func NewOperationError(op string, err error) *AppError {
	if err == nil {
		return coded(CodeOperationFailed, "Failed to "+op)
	}
	return coded(CodeOperationFailed, "Failed to "+op+": "+err.Error())
}

// NewOperationMessage is a wrapped failure whose cause is only logged, never returned.
func NewOperationMessage(message string) *AppError { return coded(CodeOperationFailed, message) }

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// RespondWithError writes err as an ErrorResponse with the given status.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	body := ErrorResponse{Error: err.Error()}
	var appErr *AppError
	if errors.As(err, &appErr) {
		body = ErrorResponse{Error: appErr.Message, Code: appErr.Code}
		if appErr.Err != nil {
			body.Details = appErr.Err.Error()
		}
	}
	return c.Status(status).JSON(body)
}
