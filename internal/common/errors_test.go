package common

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := NewAppError("POLL_TIMEOUT", "workflow processing timeout", ErrPollTimeout)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Contains(t, err.Error(), "POLL_TIMEOUT")
	assert.Contains(t, err.Error(), "workflow processing timeout")

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "POLL_TIMEOUT", appErr.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewAppError("X", "x", ErrInvalidInput), http.StatusBadRequest},
		{NewAppError("X", "x", ErrNotFound), http.StatusNotFound},
		{NewAppError("X", "x", ErrPollTimeout), http.StatusGatewayTimeout},
		{NewAppError("X", "x", ErrSubmission), http.StatusBadGateway},
		{NewAppError("X", "x", ErrPollTransport), http.StatusBadGateway},
		{NewAppError("X", "x", ErrPersistence), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "for %v", tt.err)
	}
}
