package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status. Only Code and Message
// reach the client.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// newAppError derives the code from the status text, e.g. 404 gives
// ERR_NOT_FOUND.
func newAppError(status int, message string) *AppError {
	return &AppError{Code: statusCode(status), Message: message, Status: status}
}

func statusCode(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return "ERR_UNPROCESSABLE"
	case http.StatusServiceUnavailable:
		return "ERR_UNAVAILABLE"
	case http.StatusInternalServerError:
		return "ERR_INTERNAL"
	}
	code := []byte("ERR_")
	for _, r := range http.StatusText(status) {
		switch {
		case r >= 'a' && r <= 'z':
			code = append(code, byte(r-'a'+'A'))
		case r == ' ' || r == '-':
			code = append(code, '_')
		default:
			code = append(code, byte(r))
		}
	}
	return string(code)
}

func NotFoundError(message string) *AppError {
	return newAppError(http.StatusNotFound, message)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func BadRequestError(message string) *AppError {
	return newAppError(http.StatusBadRequest, message)
}

func ConflictError(message string) *AppError {
	return newAppError(http.StatusConflict, message)
}

func UnprocessableError(message string) *AppError {
	return newAppError(http.StatusUnprocessableEntity, message)
}

func UnavailableError(message string) *AppError {
	return newAppError(http.StatusServiceUnavailable, message)
}

// ErrorRule maps a sentinel error onto an AppError constructor.
type ErrorRule struct {
	Target error
	Build  func(message string) *AppError
}

// FromError wraps err in the AppError of the first rule whose target it
// matches with errors.Is, or a 500 when none does. AppErrors pass through.
func FromError(err error, rules ...ErrorRule) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			e := r.Build(err.Error())
			e.Err = err
			return e
		}
	}
	e := newAppError(http.StatusInternalServerError, "internal error")
	e.Err = err
	return e
}
