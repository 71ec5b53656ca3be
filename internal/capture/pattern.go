package capture

import (
	"context"
	"sync"
	"time"

	"github.com/zsiec/framecast/internal/frame"
)

// PatternOptions configure a PatternSource.
type PatternOptions struct {
	Width  int
	Height int
	// FPS paces Read; 0 returns frames as fast as they are asked for.
	FPS float64
	// FrameCount ends the stream after this many frames; 0 never ends.
	FrameCount int
}

// PatternSource generates BGR frames with a bright vertical bar sweeping
// across a dark gradient. Frame n has the bar at column n mod Width.
type PatternSource struct {
	opts     PatternOptions
	interval time.Duration

	mu     sync.Mutex
	n      int
	next   time.Time
	closed bool
}

// NewPatternSource creates a synthetic source.
func NewPatternSource(opts PatternOptions) *PatternSource {
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	s := &PatternSource{opts: opts}
	if opts.FPS > 0 {
		s.interval = time.Duration(float64(time.Second) / opts.FPS)
	}
	return s
}

func (s *PatternSource) Read(ctx context.Context) (*frame.Image, error) {
	s.mu.Lock()
	if s.closed || (s.opts.FrameCount > 0 && s.n >= s.opts.FrameCount) {
		s.mu.Unlock()
		return nil, ErrEndOfStream
	}
	wait := time.Until(s.next)
	s.mu.Unlock()

	if s.interval > 0 && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.n
	s.n++
	if s.interval > 0 {
		now := time.Now()
		if s.next.Before(now) {
			s.next = now
		}
		s.next = s.next.Add(s.interval)
	}
	return Pattern(s.opts.Width, s.opts.Height, n), nil
}

// Rewind restarts the frame counter.
func (s *PatternSource) Rewind(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
	s.closed = false
	return ctx.Err()
}

// Frames returns how many frames have been produced since the last rewind.
func (s *PatternSource) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *PatternSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Pattern renders frame n of the test pattern.
func Pattern(width, height, n int) *frame.Image {
	pix := make([]byte, frame.Size(width, height, frame.FormatBGR24))
	bar := n % width
	for y := 0; y < height; y++ {
		row := y * width * 3
		shade := byte(y * 255 / height / 2)
		for x := 0; x < width; x++ {
			i := row + x*3
			if x == bar {
				pix[i], pix[i+1], pix[i+2] = 255, 255, 255
				continue
			}
			pix[i] = shade
			pix[i+1] = byte(x * 255 / width / 2)
			pix[i+2] = 32
		}
	}
	return &frame.Image{Width: width, Height: height, Format: frame.FormatBGR24, Pix: pix}
}

var _ Rewinder = (*PatternSource)(nil)
