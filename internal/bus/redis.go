package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/logger"
)

// envelope wraps a request so responders know where to reply.
type envelope struct {
	Reply string `msgpack:"reply"`
	Data  []byte `msgpack:"data"`
}

// RedisBus implements Bus on Redis pub/sub. Requests travel in a msgpack
// envelope naming a per-request reply channel.
type RedisBus struct {
	client         *redis.Client
	requestTimeout time.Duration
	logger         logger.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*redisSubscription]struct{}
}

// DialRedis connects to the first configured Redis address.
func DialRedis(ctx context.Context, cfg *config.BusConfig, log logger.Logger) (*RedisBus, error) {
	if len(cfg.Redis.Addresses) == 0 {
		return nil, errors.New("redis bus: no addresses configured")
	}
	log = logger.WithComponent(log, "bus").WithField("kind", KindRedis)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addresses[0],
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	pingCtx, cancel := withRequestTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addresses[0], err)
	}

	log.WithField("addr", cfg.Redis.Addresses[0]).Info("Connected to Redis")
	return NewRedisBus(client, cfg.RequestTimeout, log), nil
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client, requestTimeout time.Duration, log logger.Logger) *RedisBus {
	return &RedisBus{
		client:         client,
		requestTimeout: requestTimeout,
		logger:         log,
		subs:           make(map[*redisSubscription]struct{}),
	}
}

// Client exposes the underlying client for health checks.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *RedisBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.client.Publish(ctx, subject, data).Err()
}

func (b *RedisBus) Respond(subject string, handler RequestHandler) (Subscription, error) {
	return b.subscribe(subject, func(payload string) {
		var env envelope
		if err := msgpack.Unmarshal([]byte(payload), &env); err != nil {
			b.logger.WithError(err).WithField("subject", subject).Warn("Dropping malformed request envelope")
			return
		}
		reply := handler(context.Background(), env.Data)
		if env.Reply == "" {
			return
		}
		ctx, cancel := withRequestTimeout(context.Background(), b.requestTimeout)
		defer cancel()
		if err := b.client.Publish(ctx, env.Reply, reply).Err(); err != nil {
			b.logger.WithError(err).WithField("subject", subject).Warn("Failed to send reply")
		}
	})
}

func (b *RedisBus) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	return b.subscribe(subject, func(payload string) {
		handler([]byte(payload))
	})
}

// Request publishes data on subject and waits for the single reply.
func (b *RedisBus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	ctx, cancel := withRequestTimeout(ctx, b.requestTimeout)
	defer cancel()

	replyTo := fmt.Sprintf("%s.reply.%s", subject, uuid.New().String())
	ps := b.client.Subscribe(ctx, replyTo)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return nil, b.mapErr(fmt.Errorf("subscribe reply channel: %w", err))
	}

	payload, err := msgpack.Marshal(&envelope{Reply: replyTo, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode request envelope: %w", err)
	}
	receivers, err := b.client.Publish(ctx, subject, payload).Result()
	if err != nil {
		return nil, b.mapErr(err)
	}
	if receivers == 0 {
		return nil, fmt.Errorf("bus: no responders on %s", subject)
	}

	select {
	case msg, ok := <-ps.Channel():
		if !ok {
			return nil, ErrClosed
		}
		return []byte(msg.Payload), nil
	case <-ctx.Done():
		return nil, b.mapErr(ctx.Err())
	}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close ends all subscriptions and the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return b.client.Close()
}

func (b *RedisBus) subscribe(subject string, fn func(payload string)) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	ctx := context.Background()
	ps := b.client.Subscribe(ctx, subject)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{}), bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			fn(msg.Payload)
		}
	}()
	return sub, nil
}

func (b *RedisBus) mapErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, redis.ErrClosed):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	bus  *RedisBus
	once sync.Once
	err  error
}

// Unsubscribe closes the pub/sub connection and waits for the handler loop.
func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
	return s.err
}
