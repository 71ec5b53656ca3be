package pipeline

import (
	"math"
	"sync"
	"time"
)

// Status is a snapshot of the capture loop counters.
type Status struct {
	Running      bool      `json:"running"`
	LastTick     time.Time `json:"last_tick"`
	LastSeq      uint64    `json:"last_seq"`
	Ticks        uint64    `json:"ticks"`
	Skipped      uint64    `json:"skipped"`
	Failed       uint64    `json:"failed"`
	Published    uint64    `json:"published"`
	PublishDrops uint64    `json:"publish_drops"`
	Frames       uint64    `json:"frames"`
	Rewinds      uint64    `json:"rewinds"`
}

// Timing aggregates detector latency per batch.
type Timing struct {
	Batches   int           `json:"batches"`
	BatchSize int           `json:"batch_size"`
	Min       time.Duration `json:"min"`
	Max       time.Duration `json:"max"`
	Total     time.Duration `json:"total"`
}

// PerFrame returns min, max and mean latency divided by the batch size.
func (t Timing) PerFrame() (min, max, avg time.Duration) {
	if t.Batches == 0 || t.BatchSize == 0 {
		return 0, 0, 0
	}
	n := time.Duration(t.BatchSize)
	return t.Min / n, t.Max / n, t.Total / time.Duration(t.Batches) / n
}

// FPS is the frame rate the mean per-frame latency allows.
func (t Timing) FPS() float64 {
	_, _, avg := t.PerFrame()
	if avg <= 0 {
		return 0
	}
	return math.Round(float64(time.Second)/float64(avg)*10) / 10
}

type tracker struct {
	mu     sync.Mutex
	status Status
	timing Timing
}

func (t *tracker) update(fn func(s *Status)) {
	t.mu.Lock()
	fn(&t.status)
	t.mu.Unlock()
}

func (t *tracker) observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timing.Batches == 0 || d < t.timing.Min {
		t.timing.Min = d
	}
	if d > t.timing.Max {
		t.timing.Max = d
	}
	t.timing.Total += d
	t.timing.Batches++
}

func (t *tracker) snapshot() (Status, Timing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.timing
}
