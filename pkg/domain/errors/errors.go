package errors

import (
	stderrors "errors"
	"fmt"
)

// Error represents a structured error with code and context
type Error struct {
	Code    Code
	Domain  string
	Message string
	Cause   error
	Details map[string]interface{}
}

// New creates a new error with the given code, domain, message, and optional cause
func New(code Code, domain string, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Domain:  domain,
		Message: message,
		Cause:   cause,
	}
}

// WithDetail attaches a key to the error details and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Domain, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Domain, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Status returns the HTTP status for the error code.
func (e *Error) Status() int {
	return HTTPStatus(e.Code)
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternalError.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternalError
}
