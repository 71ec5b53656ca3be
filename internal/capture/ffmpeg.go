package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/logger"
)

// FFmpegOptions configure an FFmpegSource.
type FFmpegOptions struct {
	Path   string
	Input  string
	Width  int
	Height int
	FPS    float64
}

// FFmpegSource decodes Input with an ffmpeg child process writing bgr24
// rawvideo frames of Width x Height to its stdout.
type FFmpegSource struct {
	opts      FFmpegOptions
	frameSize int
	logger    logger.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *tailBuffer
}

// NewFFmpegSource starts ffmpeg for opts.Input. The process is killed when
// ctx is done.
func NewFFmpegSource(ctx context.Context, opts FFmpegOptions, log logger.Logger) (*FFmpegSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Path == "" {
		opts.Path = "ffmpeg"
	}
	s := &FFmpegSource{
		opts:      opts,
		frameSize: frame.Size(opts.Width, opts.Height, frame.FormatBGR24),
		logger:    log.WithField("input", opts.Input),
	}
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Args returns the ffmpeg command line used for opts.
func (o FFmpegOptions) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	switch {
	case strings.HasPrefix(o.Input, "rtsp://"), strings.HasPrefix(o.Input, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp")
	case strings.HasPrefix(o.Input, "/dev/video"):
		args = append(args, "-f", "v4l2")
	case !IsLive(o.Input):
		// Files are read at their native rate so the loop sees a live-like stream.
		args = append(args, "-re")
	}
	args = append(args, "-i", o.Input, "-an")
	if o.FPS > 0 {
		args = append(args, "-r", strconv.FormatFloat(o.FPS, 'f', -1, 64))
	}
	return append(args,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", o.Width, o.Height),
		"pipe:1",
	)
}

func (s *FFmpegSource) start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.opts.Path, s.opts.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, s.frameSize)
	s.stderr = stderr
	s.logger.WithField("pid", cmd.Process.Pid).Info("ffmpeg started")
	return nil
}

// stop kills the running process. Callers hold s.mu.
func (s *FFmpegSource) stop() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil

	if cmd.ProcessState == nil {
		_ = cmd.Process.Kill()
	}
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed or exited non-zero after EOF; not interesting on shutdown.
		err = nil
	}
	return err
}

// Read returns the next frame. A closed pipe maps to ErrEndOfStream.
func (s *FFmpegSource) Read(ctx context.Context) (*frame.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return nil, ErrEndOfStream
	}

	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(reader, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			if tail := s.stderrTail(); tail != "" {
				s.logger.WithField("stderr", tail).Debug("ffmpeg output ended")
			}
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	return &frame.Image{
		Width:  s.opts.Width,
		Height: s.opts.Height,
		Format: frame.FormatBGR24,
		Pix:    buf,
	}, nil
}

// Rewind restarts ffmpeg under ctx. Files restart from the beginning; live
// inputs are reopened.
func (s *FFmpegSource) Rewind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stop(); err != nil {
		s.logger.WithError(err).Debug("ffmpeg exit before rewind")
	}
	s.reader = nil
	return s.start(ctx)
}

// Close stops ffmpeg.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = nil
	return s.stop()
}

func (s *FFmpegSource) stderrTail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stderr == nil {
		return ""
	}
	return strings.TrimSpace(s.stderr.String())
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

var _ Rewinder = (*FFmpegSource)(nil)

// probeTimeout bounds ffmpeg -version in Available.
const probeTimeout = 5 * time.Second

// Available reports whether the ffmpeg binary at path runs.
func Available(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not available at %q: %w", path, err)
	}
	return nil
}
