package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/framecast/internal/bus"
	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/framestore"
	"github.com/zsiec/framecast/internal/logger"
)

func testImage(w, h int) *frame.Image {
	pix := make([]byte, frame.Size(w, h, frame.FormatBGR24))
	for i := range pix {
		pix[i] = byte(i)
	}
	return &frame.Image{Width: w, Height: h, Format: frame.FormatBGR24, Pix: pix}
}

func newTestService(t *testing.T, opts Options) (*Service, *framestore.Store) {
	t.Helper()
	store := framestore.New(3)
	if opts.Quality == 0 {
		opts.Quality = 70
	}
	return NewService(store, opts, logger.NewNullLogger()), store
}

func jpegWidth(t *testing.T, data []byte) int {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width
}

func TestHandle(t *testing.T) {
	svc, store := newTestService(t, Options{})
	store.Put(frame.NewRecord(5, testImage(64, 48)))

	tests := []struct {
		name      string
		payload   string
		wantEmpty bool
		wantWidth int
	}{
		{name: "full size", payload: "5", wantWidth: 64},
		{name: "downscaled", payload: "5,32,24", wantWidth: 32},
		{name: "upscale ignored", payload: "5,640,480", wantWidth: 64},
		{name: "absent", payload: "6", wantEmpty: true},
		{name: "width only", payload: "5,32", wantWidth: 32},
		{name: "too many fields", payload: "5,32,24,1", wantEmpty: true},
		{name: "garbage", payload: "\xff\xfe", wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := svc.Handle(context.Background(), []byte(tt.payload))
			require.NotNil(t, reply)
			if tt.wantEmpty {
				assert.Empty(t, reply)
				return
			}
			assert.Equal(t, tt.wantWidth, jpegWidth(t, reply))
		})
	}
}

func TestHandleWidthOnlyRequest(t *testing.T) {
	svc, store := newTestService(t, Options{})
	store.Put(frame.NewRecord(7, testImage(640, 480)))

	reply := svc.Handle(context.Background(), []byte("7,320"))
	require.NotEmpty(t, reply)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(reply))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestHandleAfterEviction(t *testing.T) {
	svc, store := newTestService(t, Options{})
	for seq := uint64(1); seq <= 4; seq++ {
		store.Put(frame.NewRecord(seq, testImage(8, 8)))
	}

	assert.Empty(t, svc.Handle(context.Background(), []byte("1")), "evicted")
	assert.Empty(t, svc.Handle(context.Background(), []byte("99")), "never inserted")
	assert.NotEmpty(t, svc.Handle(context.Background(), []byte("4")))
}

func TestHandleRateLimited(t *testing.T) {
	svc, store := newTestService(t, Options{RateLimit: 0.001, RateBurst: 2})
	store.Put(frame.NewRecord(1, testImage(8, 8)))

	assert.NotEmpty(t, svc.Handle(context.Background(), []byte("1")))
	assert.NotEmpty(t, svc.Handle(context.Background(), []byte("1")))
	reply := svc.Handle(context.Background(), []byte("1"))
	assert.NotNil(t, reply)
	assert.Empty(t, reply)
}

func TestHandleConcurrentWithWriter(t *testing.T) {
	svc, store := newTestService(t, Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= 200; seq++ {
			store.Put(frame.NewRecord(seq, testImage(16, 12)))
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := 1; seq <= 200; seq++ {
				reply := svc.Handle(context.Background(), []byte(Request{Seq: uint64(seq)}.String()))
				if len(reply) > 0 {
					assert.Equal(t, 16, jpegWidth(t, reply))
				}
			}
		}()
	}
	wg.Wait()
}

func TestLookupErrors(t *testing.T) {
	svc, store := newTestService(t, Options{})
	store.Put(frame.NewRecord(1, testImage(8, 8)))

	_, err := svc.Lookup(context.Background(), 2, 0)
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeNotFound, appErr.Type)

	data, err := svc.Lookup(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, jpegWidth(t, data))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Lookup(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = svc.Lookup(expired, 1, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	appErr, ok = apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeTimeout, appErr.Type)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.HTTPStatus)
}

type fakeBus struct {
	bus.Bus
	mu       sync.Mutex
	handlers map[string]bus.RequestHandler
	unsubbed bool
}

type fakeSub struct{ b *fakeBus }

func (s fakeSub) Unsubscribe() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.unsubbed = true
	return nil
}

func (f *fakeBus) Respond(subject string, h bus.RequestHandler) (bus.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subject] = h
	return fakeSub{f}, nil
}

func (f *fakeBus) handler(subject string) bus.RequestHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[subject]
}

func TestServe(t *testing.T) {
	svc, store := newTestService(t, Options{})
	store.Put(frame.NewRecord(1, testImage(8, 8)))
	fb := &fakeBus{handlers: map[string]bus.RequestHandler{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, fb, "frame") }()

	require.Eventually(t, func() bool { return fb.handler("frame") != nil }, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, fb.handler("frame")(context.Background(), []byte("1")))

	cancel()
	require.NoError(t, <-done)
	fb.mu.Lock()
	assert.True(t, fb.unsubbed)
	fb.mu.Unlock()
}

func TestHTTPHandlers(t *testing.T) {
	svc, store := newTestService(t, Options{})
	store.Put(frame.NewRecord(3, testImage(40, 20)))

	router := mux.NewRouter()
	NewHandlers(svc, apperrors.NewErrorHandler(logger.NewNullLogger()), func() interface{} {
		return map[string]int{"ticks": 9}
	}).RegisterRoutes(router)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantType   string
	}{
		{"frame", "/api/v1/frames/3", http.StatusOK, "image/jpeg"},
		{"frame resized", "/api/v1/frames/3?width=10", http.StatusOK, "image/jpeg"},
		{"missing frame", "/api/v1/frames/4", http.StatusNotFound, "application/json"},
		{"bad seq", "/api/v1/frames/x", http.StatusBadRequest, "application/json"},
		{"bad width", "/api/v1/frames/3?width=-2", http.StatusBadRequest, "application/json"},
		{"stats", "/api/v1/frames", http.StatusOK, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/frames/3?width=10", nil))
	assert.Equal(t, 10, jpegWidth(t, rec.Body.Bytes()))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/frames", nil))
	var stats struct {
		Cache    framestore.Stats `json:"cache"`
		Pipeline map[string]int   `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Cache.Size)
	assert.Equal(t, uint64(3), stats.Cache.NewestSeq)
	assert.Equal(t, 9, stats.Pipeline["ticks"])
}
