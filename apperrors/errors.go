package apperrors

import (
	"fmt"
	"net/http"
)

// Error is an application error carrying the HTTP status it maps to.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Internal wraps an unexpected error as a 500
func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, message, err)
}

// BookNotFound reports an unknown book identifier
func BookNotFound(id string) *Error {
	return New(http.StatusNotFound, fmt.Sprintf("book %s not found", id), nil)
}

// OrderNotFound reports an unknown order identifier
func OrderNotFound(id string) *Error {
	return New(http.StatusNotFound, fmt.Sprintf("order %s not found", id), nil)
}

// TransactionNotFound reports an unknown payment reference
func TransactionNotFound(reference string) *Error {
	return New(http.StatusNotFound, fmt.Sprintf("transaction %s not found", reference), nil)
}

// InsufficientStock reports a line whose quantity exceeds available stock
func InsufficientStock(title string, available, requested int) *Error {
	return New(http.StatusBadRequest,
		fmt.Sprintf("insufficient stock for %s: available=%d requested=%d", title, available, requested), nil)
}

// Validation reports a malformed request
func Validation(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}
