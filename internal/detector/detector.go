// Package detector runs object detection on captured frames through an
// external process.
package detector

import (
	"context"
	"sync"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/detection"
	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/logger"
)

// Detector returns one detection list per submitted frame, in order.
type Detector interface {
	Detect(ctx context.Context, batch []*frame.Image) ([][]detection.Detection, error)
	Close() error
}

// New creates the detector described by cfg. Without a command it falls back
// to a StaticDetector reporting nothing.
func New(cfg *config.DetectorConfig, log logger.Logger) (Detector, error) {
	log = logger.WithComponent(log, "detector")

	model, err := ParseModelType(cfg.ModelType)
	if err != nil {
		return nil, err
	}
	if err := ValidateBatchSize(cfg.BatchSize); err != nil {
		return nil, err
	}

	if cfg.Command == "" {
		log.Warn("No detector command configured, publishing empty detections")
		return NewStaticDetector(nil), nil
	}

	return StartProcess(ProcessOptions{
		Command:   cfg.Command,
		Args:      cfg.Args,
		Model:     model,
		ModelPath: cfg.ModelPath,
		Classes:   model.Classes(cfg.Classes),
		BatchSize: cfg.BatchSize,
		Timeout:   cfg.Timeout,
	}, log)
}

// StaticDetector reports the same detections for every frame.
type StaticDetector struct {
	mu         sync.Mutex
	detections []detection.Detection
	calls      int
	err        error
}

func NewStaticDetector(dets []detection.Detection) *StaticDetector {
	return &StaticDetector{detections: dets}
}

// SetError makes subsequent calls fail with err; nil restores success.
func (d *StaticDetector) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls returns how many batches have been submitted.
func (d *StaticDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *StaticDetector) Detect(ctx context.Context, batch []*frame.Image) ([][]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	slots := make([][]detection.Detection, len(batch))
	for i := range batch {
		slots[i] = append([]detection.Detection(nil), d.detections...)
	}
	return slots, nil
}

func (d *StaticDetector) Close() error {
	return nil
}
