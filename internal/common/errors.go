package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSubmission      = errors.New("work submission failed")
	ErrPollTransport   = errors.New("poll transport failed")
	ErrPollTimeout     = errors.New("polling attempts exhausted")
	ErrMalformedOutput = errors.New("engine output unusable")
	ErrPersistence     = errors.New("persistence failed")
	ErrInternal        = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps an error to the status code the API reports for it.
// Timeout is surfaced distinctly from transport failures so callers can tell
// "still processing, try later" apart from "broken".
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPollTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrSubmission), errors.Is(err, ErrPollTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
