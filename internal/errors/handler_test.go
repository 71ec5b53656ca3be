package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/framecast/internal/logger"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
		wantMsg    string
	}{
		{
			name:       "app error",
			err:        NewNotFoundError("frame 12"),
			wantStatus: http.StatusNotFound,
			wantType:   ErrorTypeNotFound,
			wantMsg:    "frame 12 not found",
		},
		{
			name:       "plain error becomes internal",
			err:        errors.New("jpeg encoder exploded"),
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeInternal,
			wantMsg:    "An unexpected error occurred",
		},
		{
			name:       "rate limited",
			err:        NewRateLimitError("too many frame requests"),
			wantStatus: http.StatusTooManyRequests,
			wantType:   ErrorTypeRateLimit,
			wantMsg:    "too many frame requests",
		},
	}

	h := NewErrorHandler(logger.NewNullLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/frames/12", nil)
			req.Header.Set(logger.RequestIDHeader, "trace-1")
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decode(t, rec)
			assert.Equal(t, tt.wantType, resp.Error.Type)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.Equal(t, "trace-1", resp.TraceID)
		})
	}
}

func TestHandleNotFoundAndMethod(t *testing.T) {
	h := NewErrorHandler(logger.NewNullLogger())

	rec := httptest.NewRecorder()
	h.HandleNotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleMethodNotAllowed(rec, httptest.NewRequest(http.MethodPost, "/api/v1/frames", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	h := NewErrorHandler(logger.NewNullLogger())
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil image")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/frames/1", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrorTypeInternal, decode(t, rec).Error.Type)
}
