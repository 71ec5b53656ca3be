// Package capture reads decoded frames from a video source.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/logger"
)

// PatternScheme selects the synthetic source.
const PatternScheme = "pattern://"

var (
	// ErrNoFrame means no frame is available right now; the next read may succeed.
	ErrNoFrame = errors.New("capture: no frame available")
	// ErrEndOfStream means the source is exhausted.
	ErrEndOfStream = errors.New("capture: end of stream")
)

// Source yields raw frames in capture order.
type Source interface {
	Read(ctx context.Context) (*frame.Image, error)
	Close() error
}

// Rewinder is implemented by sources that can restart from the beginning.
type Rewinder interface {
	Rewind(ctx context.Context) error
}

// Open creates the source named by cfg.Source.
func Open(ctx context.Context, cfg *config.CaptureConfig, log logger.Logger) (Source, error) {
	log = logger.WithComponent(log, "capture")

	if strings.HasPrefix(cfg.Source, PatternScheme) {
		log.WithFields(logger.Fields{
			"width":  cfg.Width,
			"height": cfg.Height,
			"frames": cfg.FrameCount,
		}).Info("Using synthetic pattern source")
		return NewPatternSource(PatternOptions{
			Width:      cfg.Width,
			Height:     cfg.Height,
			FPS:        cfg.FPS,
			FrameCount: cfg.FrameCount,
		}), nil
	}

	src, err := NewFFmpegSource(ctx, FFmpegOptions{
		Path:   cfg.FFmpegPath,
		Input:  cfg.Source,
		Width:  cfg.Width,
		Height: cfg.Height,
		FPS:    cfg.FPS,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", cfg.Source, err)
	}
	return src, nil
}

// IsLive reports whether input names a live stream or device rather than a file.
func IsLive(input string) bool {
	for _, prefix := range []string{"rtsp://", "rtsps://", "rtmp://", "srt://", "udp://", "http://", "https://", "/dev/video"} {
		if strings.HasPrefix(input, prefix) {
			return true
		}
	}
	return false
}
