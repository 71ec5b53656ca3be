package health

import (
	"context"
	"fmt"
	"time"

	"github.com/zsiec/framecast/internal/capture"
	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/pipeline"
)

// Pinger is a connection that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BusChecker checks message bus connectivity.
type BusChecker struct {
	bus  Pinger
	kind string
}

// NewBusChecker creates a checker for a bus of the given kind.
func NewBusChecker(bus Pinger, kind string) *BusChecker {
	return &BusChecker{bus: bus, kind: kind}
}

func (b *BusChecker) Name() string {
	return "bus"
}

func (b *BusChecker) Check(ctx context.Context) error {
	if err := b.bus.Ping(ctx); err != nil {
		down := apperrors.NewServiceDownError(b.kind)
		down.Err = fmt.Errorf("ping failed: %w", err)
		return down
	}
	return nil
}

func (b *BusChecker) Details() map[string]interface{} {
	return map[string]interface{}{"kind": b.kind}
}

// StatusSource exposes the capture loop counters.
type StatusSource interface {
	Status() pipeline.Status
}

// CaptureChecker reports the capture loop down when it is not running and
// degraded when no tick completed within maxAge.
type CaptureChecker struct {
	loop   StatusSource
	maxAge time.Duration
	now    func() time.Time
}

// NewCaptureChecker creates a capture loop checker.
func NewCaptureChecker(loop StatusSource, maxAge time.Duration) *CaptureChecker {
	return &CaptureChecker{loop: loop, maxAge: maxAge, now: time.Now}
}

func (c *CaptureChecker) Name() string {
	return "capture"
}

func (c *CaptureChecker) Check(ctx context.Context) error {
	st := c.loop.Status()
	if !st.Running {
		return fmt.Errorf("capture loop is not running")
	}
	if st.LastTick.IsZero() {
		return Degraded(fmt.Errorf("no tick completed yet"))
	}
	if age := c.now().Sub(st.LastTick); c.maxAge > 0 && age > c.maxAge {
		return Degraded(fmt.Errorf("last tick %s ago", age.Round(time.Millisecond)))
	}
	return nil
}

func (c *CaptureChecker) Details() map[string]interface{} {
	st := c.loop.Status()
	return map[string]interface{}{
		"last_seq":  st.LastSeq,
		"ticks":     st.Ticks,
		"failed":    st.Failed,
		"published": st.Published,
	}
}

// FFmpegChecker checks that the ffmpeg binary runs.
type FFmpegChecker struct {
	path string
}

// NewFFmpegChecker creates an ffmpeg checker. An empty path means "ffmpeg".
func NewFFmpegChecker(path string) *FFmpegChecker {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegChecker{path: path}
}

func (f *FFmpegChecker) Name() string {
	return "ffmpeg"
}

func (f *FFmpegChecker) Check(ctx context.Context) error {
	return capture.Available(ctx, f.path)
}
