// Package retrieval serves cached frames by sequence number as JPEG, over the
// bus request/reply subject and over HTTP.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/zsiec/framecast/internal/bus"
	"github.com/zsiec/framecast/internal/codec"
	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/framestore"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/internal/metrics"
)

const (
	transportBus  = "bus"
	transportHTTP = "http"
)

// Options configure a Service.
type Options struct {
	Quality   int
	RateLimit float64 // requests per second; 0 disables limiting
	RateBurst int
}

// Service resolves frame requests against the store.
type Service struct {
	store   *framestore.Store
	encoder *codec.Encoder
	limiter *rate.Limiter
	logger  logger.Logger
	sampled *logger.Sampled
}

// NewService creates a retrieval service reading from store.
func NewService(store *framestore.Store, opts Options, log logger.Logger) *Service {
	log = logger.WithComponent(log, "retrieval")
	s := &Service{
		store:   store,
		encoder: codec.NewEncoder(opts.Quality),
		logger:  log,
		sampled: logger.NewSampled(log, 5, 10*time.Second),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handle answers one bus request. It always returns the reply payload: JPEG
// bytes for a cached frame, otherwise an empty payload.
func (s *Service) Handle(ctx context.Context, payload []byte) []byte {
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.RecordRetrieval(transportBus, metrics.OutcomeRateLimited, 0)
		s.sampled.Do("rate_limited", func(l logger.Logger) {
			l.Warn("Frame request rate limit exceeded, replying empty")
		})
		return []byte{}
	}

	req, err := ParseRequest(payload)
	if err != nil {
		metrics.RecordRetrieval(transportBus, metrics.OutcomeMalformed, 0)
		s.sampled.Do("malformed", func(l logger.Logger) {
			l.WithError(err).WithField("payload", truncate(payload, 64)).Warn("Malformed frame request")
		})
		return []byte{}
	}

	data, outcome, err := s.resolve(req)
	metrics.RecordRetrieval(transportBus, outcome, len(data))
	s.logOutcome(req, outcome, len(data), err)
	if err != nil {
		return []byte{}
	}
	return data
}

// Lookup encodes frame seq at the given maximum width. Absent frames yield a
// NOT_FOUND AppError.
func (s *Service) Lookup(ctx context.Context, seq uint64, width int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			timeout := apperrors.NewTimeoutError("frame request timed out")
			timeout.Err = err
			return nil, timeout
		}
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.RecordRetrieval(transportHTTP, metrics.OutcomeRateLimited, 0)
		return nil, apperrors.NewRateLimitError("too many frame requests")
	}

	req := Request{Seq: seq, Width: width}
	data, outcome, err := s.resolve(req)
	metrics.RecordRetrieval(transportHTTP, outcome, len(data))
	s.logOutcome(req, outcome, len(data), err)

	switch outcome {
	case metrics.OutcomeServed:
		return data, nil
	case metrics.OutcomeNotFound:
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("frame %d", seq)).
			WithDetails(map[string]interface{}{"seq": seq})
	}
	return nil, apperrors.WrapInternalError(err, "failed to encode frame")
}

// Stats reports the state of the backing store.
func (s *Service) Stats() framestore.Stats {
	return s.store.Stats()
}

func (s *Service) resolve(req Request) ([]byte, string, error) {
	rec, ok := s.store.Get(req.Seq)
	if !ok || rec.Image == nil {
		return nil, metrics.OutcomeNotFound, nil
	}

	start := time.Now()
	data, err := s.encoder.Encode(rec.Image, req.Width)
	metrics.ObserveEncode(time.Since(start))
	if err != nil {
		return nil, metrics.OutcomeEncodeError, err
	}
	return data, metrics.OutcomeServed, nil
}

func (s *Service) logOutcome(req Request, outcome string, size int, err error) {
	entry := s.logger.WithFields(logger.Fields{
		"seq":     req.Seq,
		"width":   req.Width,
		"outcome": outcome,
	})
	switch outcome {
	case metrics.OutcomeServed:
		entry.WithField("bytes", size).Debugf("Frame %d: replying with %d bytes", req.Seq, size)
	case metrics.OutcomeNotFound:
		entry.Infof("Frame %d not found in cache", req.Seq)
	default:
		entry.WithError(err).Error("Frame encode failed, replying empty")
	}
}

// Serve answers requests on subject until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, b bus.Bus, subject string) error {
	sub, err := b.Respond(subject, s.Handle)
	if err != nil {
		return fmt.Errorf("subscribe frame requests on %s: %w", subject, err)
	}
	s.logger.WithField("subject", subject).Info("Serving frame requests")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		s.logger.WithError(err).Debug("Unsubscribe frame requests")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
