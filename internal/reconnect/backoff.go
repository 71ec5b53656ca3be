// Package reconnect provides retry delays for reopening sources and
// connections.
package reconnect

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Strategy defines the retry delay policy.
type Strategy interface {
	// NextDelay returns the next delay and whether to keep retrying.
	NextDelay() (time.Duration, bool)
	// Reset returns the strategy to its initial state after a success.
	Reset()
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to MaxDelay,
// with ±20% jitter. MaxRetries of 0 retries forever.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int

	currentDelay time.Duration
	retryCount   int
	mu           sync.Mutex
}

// NewExponentialBackoff creates a new exponential backoff strategy.
func NewExponentialBackoff(initialDelay, maxDelay time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
		MaxRetries:   maxRetries,
		currentDelay: initialDelay,
	}
}

func (e *ExponentialBackoff) NextDelay() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.MaxRetries > 0 && e.retryCount >= e.MaxRetries {
		return 0, false
	}

	jitter := 0.8 + 0.4*rand.Float64()
	delay := time.Duration(float64(e.currentDelay) * jitter)

	e.currentDelay = time.Duration(float64(e.currentDelay) * e.Multiplier)
	if e.currentDelay > e.MaxDelay {
		e.currentDelay = e.MaxDelay
	}
	e.retryCount++
	return delay, true
}

func (e *ExponentialBackoff) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentDelay = e.InitialDelay
	e.retryCount = 0
}

// Attempts returns how many delays have been handed out since the last Reset.
func (e *ExponentialBackoff) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryCount
}

// Wait sleeps for the strategy's next delay. It returns false when the
// strategy is exhausted or ctx is done first.
func Wait(ctx context.Context, s Strategy) bool {
	delay, ok := s.NextDelay()
	if !ok {
		return false
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
