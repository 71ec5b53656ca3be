package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/internal/pipeline"
)

type mockChecker struct {
	name  string
	err   error
	delay time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestManagerRunChecks(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "ok"})
	manager.Register(&mockChecker{name: "down", err: errors.New("connection refused")})
	manager.Register(&mockChecker{name: "slow", err: Degraded(errors.New("lagging"))})

	results := manager.RunChecks(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, StatusOK, results["ok"].Status)
	assert.Empty(t, results["ok"].Message)
	assert.Equal(t, StatusDown, results["down"].Status)
	assert.Contains(t, results["down"].Message, "connection refused")
	assert.Equal(t, StatusDegraded, results["slow"].Status)
	assert.Equal(t, "lagging", results["slow"].Message)

	assert.Equal(t, StatusDown, manager.GetOverallStatus())
}

func TestManagerTimeout(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.SetCheckTimeout(20 * time.Millisecond)
	manager.Register(&mockChecker{name: "hang", delay: time.Second})

	start := time.Now()
	results := manager.RunChecks(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusDown, results["hang"].Status)
	assert.Equal(t, "Health check timed out", results["hang"].Message)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"no results", nil, StatusDown},
		{"all ok", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b"}}, StatusOK},
		{"one degraded", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b", err: Degraded(assert.AnError)}}, StatusDegraded},
		{"down wins", []Checker{&mockChecker{name: "a", err: assert.AnError}, &mockChecker{name: "b", err: Degraded(assert.AnError)}}, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(logger.NewNullLogger())
			for _, c := range tt.checkers {
				manager.Register(c)
			}
			manager.RunChecks(context.Background())
			assert.Equal(t, tt.want, manager.GetOverallStatus())
		})
	}
}

func TestGetResultsReturnsCopies(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "test"})
	manager.RunChecks(context.Background())

	results := manager.GetResults()
	results["test"].Status = StatusDown
	assert.Equal(t, StatusOK, manager.GetResults()["test"].Status)
}

func TestManagerConcurrentAccess(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "a", delay: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			manager.RunChecks(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = manager.GetResults()
			_ = manager.GetOverallStatus()
		}()
	}
	wg.Wait()
	assert.Equal(t, StatusOK, manager.GetOverallStatus())
}

func TestStartPeriodicChecks(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.StartPeriodicChecks(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(manager.GetResults()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestBusChecker(t *testing.T) {
	ok := NewBusChecker(pingerFunc(func(context.Context) error { return nil }), "nats")
	assert.Equal(t, "bus", ok.Name())
	assert.NoError(t, ok.Check(context.Background()))
	assert.Equal(t, "nats", ok.Details()["kind"])

	closed := errors.New("closed")
	bad := NewBusChecker(pingerFunc(func(context.Context) error { return closed }), "redis")
	err := bad.Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, closed)
	assert.Contains(t, err.Error(), "redis service is currently unavailable")
	appErr, found := apperrors.GetAppError(err)
	require.True(t, found)
	assert.Equal(t, apperrors.ErrorTypeServiceDown, appErr.Type)
}

type fixedStatus struct{ st pipeline.Status }

func (f fixedStatus) Status() pipeline.Status { return f.st }

func TestCaptureChecker(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   pipeline.Status
		wantErr  bool
		degraded bool
	}{
		{"not running", pipeline.Status{}, true, false},
		{"no tick yet", pipeline.Status{Running: true}, true, true},
		{"stale", pipeline.Status{Running: true, LastTick: now.Add(-time.Minute)}, true, true},
		{"fresh", pipeline.Status{Running: true, LastTick: now.Add(-time.Second)}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCaptureChecker(fixedStatus{tt.status}, 10*time.Second)
			c.now = func() time.Time { return now }

			err := c.Check(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.degraded, IsDegraded(err))
		})
	}
}

func TestFFmpegChecker(t *testing.T) {
	c := NewFFmpegChecker("/nonexistent/ffmpeg")
	assert.Equal(t, "ffmpeg", c.Name())
	assert.Error(t, c.Check(context.Background()))

	assert.Equal(t, "ffmpeg", NewFFmpegChecker("").path)
}
