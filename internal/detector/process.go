package detector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/framecast/internal/detection"
	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/logger"
)

// DefaultTimeout bounds one Detect call when none is configured.
const DefaultTimeout = 2 * time.Second

// ProcessOptions configure a ProcessDetector.
type ProcessOptions struct {
	Command   string
	Args      []string
	Model     ModelType
	ModelPath string
	Classes   int
	BatchSize int
	Timeout   time.Duration
}

// CommandArgs returns the configured args followed by the model flags the
// detector process is started with.
func (o ProcessOptions) CommandArgs() []string {
	args := append([]string(nil), o.Args...)
	args = append(args,
		"--model-type", string(o.Model),
		"--classes", strconv.Itoa(o.Classes),
		"--batch", strconv.Itoa(o.BatchSize),
	)
	if o.ModelPath != "" {
		args = append(args, "--model", o.ModelPath)
	}
	return args
}

// ProcessDetector talks to a detector child process over stdin/stdout with
// length-prefixed msgpack messages. Calls are serialized. A call that times
// out or breaks framing kills the process; the next call starts a new one.
type ProcessDetector struct {
	opts   ProcessOptions
	logger logger.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin      io.WriteCloser
	stdoutPipe *os.File
	stdout     *bufio.Reader
	seq        uint64
	exited     chan struct{}
}

// StartProcess launches the detector process.
func StartProcess(opts ProcessOptions, log logger.Logger) (*ProcessDetector, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	d := &ProcessDetector{opts: opts, logger: log.WithField("command", opts.Command)}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.spawn(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ProcessDetector) spawn() error {
	cmd := exec.Command(d.opts.Command, d.opts.CommandArgs()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("detector stdin pipe: %w", err)
	}
	// Wait closes pipes made by StdoutPipe, which would race with reading a
	// reply written just before the process exits. A pipe we own stays
	// readable until drained.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("detector stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return fmt.Errorf("detector stderr pipe: %w", err)
	}
	err = cmd.Start()
	stdoutW.Close()
	if err != nil {
		stdout.Close()
		return fmt.Errorf("start detector %s: %w", d.opts.Command, err)
	}

	exited := make(chan struct{})
	go d.logStderr(stderr)
	go func() {
		err := cmd.Wait()
		close(exited)
		if err != nil {
			d.logger.WithError(err).Warn("Detector process exited")
		}
	}()

	d.cmd = cmd
	d.stdin = stdin
	d.stdoutPipe = stdout
	d.stdout = bufio.NewReader(stdout)
	d.exited = exited

	d.logger.WithFields(logger.Fields{
		"pid":   cmd.Process.Pid,
		"model": d.opts.Model,
		"batch": d.opts.BatchSize,
	}).Info("Detector process started")
	return nil
}

func (d *ProcessDetector) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "ERROR"), strings.Contains(line, "CRITICAL"):
			d.logger.WithField("stderr", line).Error("Detector")
		case strings.Contains(line, "WARN"):
			d.logger.WithField("stderr", line).Warn("Detector")
		default:
			d.logger.WithField("stderr", line).Debug("Detector")
		}
	}
}

// kill terminates the current process. Callers hold d.mu.
func (d *ProcessDetector) kill() {
	if d.cmd == nil {
		return
	}
	_ = d.cmd.Process.Kill()
	<-d.exited
	d.release()
}

// release drops the handles of an exited process. Callers hold d.mu.
func (d *ProcessDetector) release() {
	_ = d.stdin.Close()
	_ = d.stdoutPipe.Close()
	d.cmd = nil
}

type callResult struct {
	resp Response
	err  error
}

// Detect submits batch and waits for the per-frame detections.
func (d *ProcessDetector) Detect(ctx context.Context, batch []*frame.Image) ([][]detection.Detection, error) {
	if len(batch) == 0 {
		return [][]detection.Detection{}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		select {
		case <-d.exited:
			d.release()
		default:
		}
	}
	if d.cmd == nil {
		if err := d.spawn(); err != nil {
			return nil, err
		}
	}

	d.seq++
	req := Request{Seq: d.seq, Frames: make([]WireFrame, len(batch))}
	for i, img := range batch {
		req.Frames[i] = WireFrame{Width: img.Width, Height: img.Height, Format: string(img.Format), Data: img.Pix}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	stdin, stdout := d.stdin, d.stdout
	done := make(chan callResult, 1)
	go func() {
		var res callResult
		if res.err = WriteMessage(stdin, &req); res.err == nil {
			res.err = ReadMessage(stdout, &res.resp)
		}
		done <- res
	}()

	var res callResult
	select {
	case res = <-done:
	case <-d.exited:
		// The reply may have been written before the exit.
		select {
		case res = <-done:
		case <-ctx.Done():
			res.err = ctx.Err()
		}
		d.release()
		if res.err != nil {
			return nil, fmt.Errorf("detector process exited: %w", res.err)
		}
		d.logger.Warn("Detector process exited after replying")
	case <-ctx.Done():
		d.logger.WithField("timeout", d.opts.Timeout).Warn("Detector call timed out, restarting process")
		d.kill()
		return nil, fmt.Errorf("detector call: %w", ctx.Err())
	}

	if res.err != nil {
		d.kill()
		return nil, fmt.Errorf("detector protocol: %w", res.err)
	}
	if res.resp.Error != "" {
		return nil, fmt.Errorf("detector: %s", res.resp.Error)
	}
	if len(res.resp.Slots) != len(batch) {
		return nil, fmt.Errorf("detector returned %d slots for %d frames", len(res.resp.Slots), len(batch))
	}

	slots := make([][]detection.Detection, len(res.resp.Slots))
	for i, boxes := range res.resp.Slots {
		slots[i] = make([]detection.Detection, len(boxes))
		for j, b := range boxes {
			slots[i][j] = b.Detection()
		}
	}
	return slots, nil
}

// Close closes the process stdin and waits briefly before killing it.
func (d *ProcessDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil
	}

	_ = d.stdin.Close()
	select {
	case <-d.exited:
	case <-time.After(2 * time.Second):
		d.logger.Warn("Detector did not exit after stdin closed, killing")
		_ = d.cmd.Process.Kill()
		<-d.exited
	}
	d.release()
	return nil
}
