// Package bus is the message transport for frame requests and detection
// broadcasts. NATS is the native transport; Redis pub/sub is the alternative
// for deployments that already run Redis.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/logger"
)

const (
	KindNATS  = "nats"
	KindRedis = "redis"
)

var (
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("bus: closed")
	// ErrTimeout is returned when a request gets no reply in time.
	ErrTimeout = errors.New("bus: request timed out")
)

// RequestHandler produces exactly one reply for each request. An empty reply
// is a valid reply.
type RequestHandler func(ctx context.Context, req []byte) []byte

// MessageHandler consumes a broadcast message.
type MessageHandler func(data []byte)

// Subscription is an active Respond or Subscribe registration.
type Subscription interface {
	Unsubscribe() error
}

// Bus publishes broadcasts, serves request/reply subjects and issues requests.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Respond(subject string, handler RequestHandler) (Subscription, error)
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the transport selected by cfg.Kind.
func Open(ctx context.Context, cfg *config.BusConfig, log logger.Logger) (Bus, error) {
	switch cfg.Kind {
	case KindNATS, "":
		return DialNATS(cfg, log)
	case KindRedis:
		return DialRedis(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unsupported bus kind %q", cfg.Kind)
}

// withRequestTimeout applies the configured timeout when ctx has no deadline.
func withRequestTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
