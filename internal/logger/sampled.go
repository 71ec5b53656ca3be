package logger

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sampled throttles noisy per-frame log lines by category. Each category logs
// its first burst messages, then at most once per interval.
type Sampled struct {
	base     Logger
	burst    int
	interval time.Duration

	mu       sync.Mutex
	samplers map[string]*rate.Sometimes
}

// NewSampled wraps base with per-category sampling.
func NewSampled(base Logger, burst int, interval time.Duration) *Sampled {
	return &Sampled{
		base:     base,
		burst:    burst,
		interval: interval,
		samplers: make(map[string]*rate.Sometimes),
	}
}

// Do runs fn with the base logger if the category is not currently throttled.
func (s *Sampled) Do(category string, fn func(Logger)) {
	s.mu.Lock()
	sampler, ok := s.samplers[category]
	if !ok {
		sampler = &rate.Sometimes{First: s.burst, Interval: s.interval}
		s.samplers[category] = sampler
	}
	s.mu.Unlock()

	sampler.Do(func() { fn(s.base) })
}

// Base returns the unsampled logger.
func (s *Sampled) Base() Logger {
	return s.base
}
