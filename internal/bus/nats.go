package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/pkg/version"
)

// NATSBus implements Bus on a NATS connection.
type NATSBus struct {
	conn           *nats.Conn
	requestTimeout time.Duration
	logger         logger.Logger
	closed         chan struct{}
}

const drainTimeout = 5 * time.Second

// DialNATS connects to cfg.URL. The client reconnects indefinitely once the
// first connection succeeds.
func DialNATS(cfg *config.BusConfig, log logger.Logger) (*NATSBus, error) {
	log = logger.WithComponent(log, "bus").WithField("kind", KindNATS)
	closed := make(chan struct{})

	conn, err := nats.Connect(cfg.URL,
		nats.Name(version.ClientName(cfg.Instance)),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrlRedacted()).Info("Reconnected to NATS")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			entry := log.WithError(err)
			if sub != nil {
				entry = entry.WithField("subject", sub.Subject)
			}
			entry.Error("NATS async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}

	log.WithField("url", conn.ConnectedUrlRedacted()).Info("Connected to NATS")
	return &NATSBus{conn: conn, requestTimeout: cfg.RequestTimeout, logger: log, closed: closed}, nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return b.mapErr(err)
	}
	return nil
}

// Respond serves subject with handler. Messages without a reply inbox are
// handled and the result discarded.
func (b *NATSBus) Respond(subject string, handler RequestHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		reply := handler(context.Background(), m.Data)
		if m.Reply == "" {
			return
		}
		if err := m.Respond(reply); err != nil {
			b.logger.WithError(err).WithField("subject", subject).Warn("Failed to send reply")
		}
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return sub, nil
}

func (b *NATSBus) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return sub, nil
}

func (b *NATSBus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	ctx, cancel := withRequestTimeout(ctx, b.requestTimeout)
	defer cancel()

	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, b.mapErr(err)
	}
	return msg.Data, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats: %s", b.conn.Status())
	}
	ctx, cancel := withRequestTimeout(ctx, b.requestTimeout)
	defer cancel()
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions and closes the connection.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	select {
	case <-b.closed:
	case <-time.After(drainTimeout):
		b.logger.Warn("NATS drain timed out, closing")
		b.conn.Close()
	}
	return nil
}

func (b *NATSBus) mapErr(err error) error {
	switch {
	case errors.Is(err, nats.ErrConnectionClosed):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
