// Package pipeline runs the capture and inference loop: read a batch of
// frames, detect, serialize, cache the frame and broadcast the detections.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zsiec/framecast/internal/capture"
	"github.com/zsiec/framecast/internal/detection"
	"github.com/zsiec/framecast/internal/detector"
	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/framestore"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/internal/metrics"
	"github.com/zsiec/framecast/internal/reconnect"
)

// idleBackoff is how long Run waits after a tick that skipped or failed.
const idleBackoff = 10 * time.Millisecond

// Publisher sends detection records.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Options configure a Loop.
type Options struct {
	BatchSize           int
	ConfidenceThreshold float64
	Subject             string
	// Loop rewinds the source at end of stream instead of stopping.
	Loop bool
}

// Outcome classifies a tick.
type Outcome string

const (
	OutcomePublished Outcome = metrics.TickPublished
	OutcomeSkipped   Outcome = metrics.TickSkipped
	OutcomeFailed    Outcome = metrics.TickFailed
)

// TickResult describes one tick.
type TickResult struct {
	Outcome     Outcome
	Seq         uint64
	Frames      int
	Detections  int
	EndOfStream bool
	// Err is the recoverable fault behind a failed tick or a dropped publish.
	Err error
}

// Loop is the capture/inference loop. It is driven from a single goroutine.
type Loop struct {
	source     capture.Source
	detector   detector.Detector
	serializer *detection.Serializer
	store      *framestore.Store
	publisher  Publisher
	opts       Options

	logger  logger.Logger
	sampled *logger.Sampled
	stats   tracker
	seq     uint64

	// rewindBackoff spaces out rewind attempts while the source keeps failing.
	rewindBackoff reconnect.Strategy
}

// New creates a loop. BatchSize is clamped to at least 1.
func New(src capture.Source, det detector.Detector, ser *detection.Serializer, store *framestore.Store,
	pub Publisher, opts Options, log logger.Logger) *Loop {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	log = logger.WithComponent(log, "pipeline")
	l := &Loop{
		source:     src,
		detector:   det,
		serializer: ser,
		store:      store,
		publisher:  pub,
		opts:       opts,
		logger:     log,
		sampled:    logger.NewSampled(log, 3, 5*time.Second),

		rewindBackoff: reconnect.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2, 0),
	}
	l.stats.timing.BatchSize = opts.BatchSize
	return l
}

// Run ticks until ctx is cancelled, a fatal error occurs, or a non-looping
// source ends. Cancellation and a clean end of stream return nil.
func (l *Loop) Run(ctx context.Context) error {
	l.stats.update(func(s *Status) { s.Running = true })
	defer l.stats.update(func(s *Status) { s.Running = false })

	l.logger.WithFields(logger.Fields{
		"batch_size": l.opts.BatchSize,
		"threshold":  l.opts.ConfidenceThreshold,
		"subject":    l.opts.Subject,
	}).Info("Capture loop started")

	for {
		if ctx.Err() != nil {
			l.logger.Info("Capture loop stopped")
			return nil
		}

		res, err := l.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if res.EndOfStream {
			if !l.opts.Loop {
				l.logger.Info("Video source ended")
				return nil
			}
			l.rewind(ctx)
			continue
		}

		if res.Outcome == OutcomeSkipped || res.Outcome == OutcomeFailed {
			select {
			case <-ctx.Done():
			case <-time.After(idleBackoff):
			}
		}
	}
}

func (l *Loop) rewind(ctx context.Context) {
	rw, ok := l.source.(capture.Rewinder)
	if !ok {
		l.sampled.Do("rewind_unsupported", func(log logger.Logger) {
			log.Warn("Video source ended and cannot be rewound, waiting")
		})
		reconnect.Wait(ctx, l.rewindBackoff)
		return
	}
	if err := rw.Rewind(ctx); err != nil {
		l.sampled.Do("rewind", func(log logger.Logger) {
			log.WithError(err).Error("Failed to rewind video source")
		})
		reconnect.Wait(ctx, l.rewindBackoff)
		return
	}
	l.rewindBackoff.Reset()
	metrics.IncrementCaptureRewinds()
	l.stats.update(func(s *Status) { s.Rewinds++ })
	l.logger.Debug("Video source rewound")
}

// Tick runs one capture/detect/publish cycle. The returned error is non-nil
// only for fatal faults or cancellation; recoverable faults are reported in
// TickResult.Err with OutcomeFailed.
func (l *Loop) Tick(ctx context.Context) (res TickResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = TickResult{Outcome: OutcomeFailed, Seq: res.Seq, Frames: res.Frames, Err: fmt.Errorf("panic: %v", r)}
			err = nil
		}
		l.finish(res, err)
	}()

	batch, eos, readErr := l.readBatch(ctx)
	res.Frames = len(batch)
	res.EndOfStream = eos
	if readErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("read frame: %w", readErr)
		return res, nil
	}
	if len(batch) == 0 {
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	l.seq++
	res.Seq = l.seq

	start := time.Now()
	slots, err := l.detector.Detect(ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		if apperrors.IsFatal(err) {
			return res, err
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("detect: %w", err)
		return res, nil
	}
	l.stats.observe(elapsed)
	metrics.ObserveInference(elapsed)

	last := batch[len(batch)-1]
	record := detection.BatchRecord{
		FrameSeq:    res.Seq,
		FrameWidth:  last.Width,
		FrameHeight: last.Height,
		Slots:       detection.FilterByConfidence(slots, l.opts.ConfidenceThreshold),
	}
	payload, err := l.serializer.Serialize(record)
	if err != nil {
		if apperrors.IsFatal(err) {
			return res, err
		}
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("serialize: %w", err)
		return res, nil
	}
	res.Detections = record.Count()

	l.store.Put(frame.NewRecord(res.Seq, last))

	res.Outcome = OutcomePublished
	pubErr := l.publisher.Publish(ctx, l.opts.Subject, payload)
	metrics.RecordPublish(l.opts.Subject, pubErr)
	if pubErr != nil {
		res.Err = fmt.Errorf("publish: %w", pubErr)
	}
	return res, nil
}

// readBatch reads up to BatchSize frames. ErrNoFrame and ErrEndOfStream end
// the batch early without failing it.
func (l *Loop) readBatch(ctx context.Context) ([]*frame.Image, bool, error) {
	batch := make([]*frame.Image, 0, l.opts.BatchSize)
	for len(batch) < l.opts.BatchSize {
		img, err := l.source.Read(ctx)
		switch {
		case err == nil:
			batch = append(batch, img)
		case errors.Is(err, capture.ErrNoFrame):
			return batch, false, nil
		case errors.Is(err, capture.ErrEndOfStream):
			return batch, true, nil
		default:
			return nil, false, err
		}
	}
	return batch, false, nil
}

func (l *Loop) finish(res TickResult, err error) {
	now := time.Now()
	l.stats.update(func(s *Status) {
		s.LastTick = now
		s.Ticks++
		s.Frames += uint64(res.Frames)
		switch res.Outcome {
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		case OutcomePublished:
			s.LastSeq = res.Seq
			if res.Err != nil {
				s.PublishDrops++
			} else {
				s.Published++
			}
		}
	})

	metrics.AddFramesCaptured(res.Frames)
	if res.Outcome != "" {
		metrics.RecordTick(string(res.Outcome))
	}

	switch {
	case err != nil:
		if apperrors.IsFatal(err) {
			l.logger.WithError(err).WithField("seq", res.Seq).Error("Fatal pipeline error")
		}
	case res.Outcome == OutcomeFailed:
		l.sampled.Do("tick_failed", func(log logger.Logger) {
			log.WithError(res.Err).WithField("seq", res.Seq).Warn("Exception, skipping frame")
		})
	case res.Outcome == OutcomePublished && res.Err != nil:
		l.sampled.Do("publish", func(log logger.Logger) {
			log.WithError(res.Err).WithField("seq", res.Seq).Warn("Failed to publish detections")
		})
	case res.Outcome == OutcomePublished:
		metrics.AddDetections(res.Detections)
		l.logger.WithFields(logger.Fields{
			"seq":        res.Seq,
			"frames":     res.Frames,
			"detections": res.Detections,
		}).Debug("Tick published")
	}
}

// Status returns the loop counters.
func (l *Loop) Status() Status {
	s, _ := l.stats.snapshot()
	return s
}

// Timing returns detector latency statistics.
func (l *Loop) Timing() Timing {
	_, t := l.stats.snapshot()
	return t
}

// LogSummary logs inference timing, as printed at shutdown.
func (l *Loop) LogSummary() {
	status, timing := l.stats.snapshot()
	min, max, avg := timing.PerFrame()
	l.logger.WithFields(logger.Fields{
		"ticks":      status.Ticks,
		"published":  status.Published,
		"failed":     status.Failed,
		"skipped":    status.Skipped,
		"min_ms":     float64(min) / float64(time.Millisecond),
		"max_ms":     float64(max) / float64(time.Millisecond),
		"avg_ms":     float64(avg) / float64(time.Millisecond),
		"fps":        timing.FPS(),
		"batch_size": timing.BatchSize,
	}).Info("Detection ended, time stats")
}
