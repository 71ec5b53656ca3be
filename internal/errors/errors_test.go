package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(ErrorTypeValidation, "bad width", http.StatusBadRequest)
		assert.Equal(t, "VALIDATION_ERROR: bad width", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("Wrap keeps cause", func(t *testing.T) {
		cause := errors.New("pipe closed")
		err := Wrap(cause, ErrorTypeServiceDown, "detector gone", http.StatusServiceUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "pipe closed")
	})

	t.Run("details and code", func(t *testing.T) {
		err := NewNotFoundError("frame").WithCode("FRAME_EVICTED").WithDetails(map[string]interface{}{"seq": 4})
		assert.Equal(t, "FRAME_EVICTED", err.Code)
		assert.Equal(t, 4, err.Details["seq"])
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("x"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("frame"), ErrorTypeNotFound, http.StatusNotFound},
		{"internal", NewInternalError("x"), ErrorTypeInternal, http.StatusInternalServerError},
		{"timeout", NewTimeoutError("x"), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"rate limit", NewRateLimitError("x"), ErrorTypeRateLimit, http.StatusTooManyRequests},
		{"service down", NewServiceDownError("bus"), ErrorTypeServiceDown, http.StatusServiceUnavailable},
		{"fatal", NewFatalError("x"), ErrorTypeFatal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
		})
	}
}

func TestGetAppErrorThroughWrapping(t *testing.T) {
	appErr := NewNotFoundError("frame")
	wrapped := fmt.Errorf("retrieval: %w", appErr)

	got, ok := GetAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, appErr, got)
	assert.True(t, IsAppError(wrapped))

	_, ok = GetAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsAppError(nil))
}

func TestIsFatal(t *testing.T) {
	fatal := NewFatalError("class id 91 outside label table")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"fatal", fatal, true},
		{"wrapped fatal", fmt.Errorf("tick 3: %w", fatal), true},
		{"fatal under internal", WrapInternalError(fatal, "serialize"), true},
		{"internal", NewInternalError("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
