package domain

import (
	"errors"
	"net/http"
)

// Error codes shared by the remote client, the collection views and the HTTP layer.
const (
	CodeNotFound   = 1
	CodeConflict   = 2
	CodeValidation = 3
	CodeInternal   = 4
	CodeTransport  = 5
)

// AppError carries a classification code, a user-facing message and an optional cause.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined errors.
//
// Match categories with the helpers (IsNotFound, IsConflict, ...) rather
// than errors.Is: the helpers compare codes, so a fresh NewAppError with the
// same code matches too.
var (
	ErrNotFound   = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrConflict   = &AppError{Code: CodeConflict, Message: "conflict"}
	ErrValidation = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal   = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrTransport  = &AppError{Code: CodeTransport, Message: "remote service unreachable"}
)

// NewAppError creates a new AppError with the given code, message, and wrapped error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound reports whether err is or wraps an AppError with CodeNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsConflict reports whether err is or wraps an AppError with CodeConflict.
func IsConflict(err error) bool {
	return hasCode(err, CodeConflict)
}

// IsValidation reports whether err is or wraps an AppError with CodeValidation.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsInternal reports whether err is or wraps an AppError with CodeInternal.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

// IsTransport reports whether err is or wraps an AppError with CodeTransport.
func IsTransport(err error) bool {
	return hasCode(err, CodeTransport)
}

// IsRowScoped reports whether err concerns a single record (it vanished or
// changed underneath the caller) rather than the collection as a whole.
func IsRowScoped(err error) bool {
	return IsNotFound(err) || IsConflict(err)
}

func hasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatusCode maps an error to an HTTP status code.
// Anything that is not an *AppError maps to http.StatusInternalServerError.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeValidation:
			return http.StatusBadRequest
		case CodeTransport:
			return http.StatusBadGateway
		case CodeInternal:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
