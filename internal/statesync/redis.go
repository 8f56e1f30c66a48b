package statesync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rybkr/logarc/internal/errs"
)

const eventChannel = "logarc:statesync:events"

// RedisConfig mirrors the retry-aware publisher configuration the original
// workspace-sync engine used when it moved event fanout onto Redis Pub/Sub.
type RedisConfig struct {
	URL               string
	PoolSize          int
	ConnectionTimeout time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:               "redis://127.0.0.1:6379/0",
		PoolSize:          10,
		ConnectionTimeout: 5 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        500 * time.Millisecond,
	}
}

// RedisPublisher fans Events out over a Redis Pub/Sub channel so that other
// processes sharing the same cache/state-sync deployment observe them too,
// independent of which process's Hub a given client is connected to.
type RedisPublisher struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisPublisher connects to Redis. A connection failure is returned as a
// clear error rather than silently degrading to no-op, leaving the caller
// free to decide whether cross-process fanout is required.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "parse redis url", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "connect to redis", err)
	}

	return &RedisPublisher{cfg: cfg, client: client}, nil
}

func (p *RedisPublisher) Config() RedisConfig { return p.cfg }

// Publish serializes event to JSON and publishes it, making at most
// RetryAttempts attempts in all (at least one) with RetryDelay between
// them; any publish error is retried.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal event for publish", err)
	}

	attempts := p.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errs.Wrap(errs.Cancelled, "publish event", ctx.Err())
			case <-time.After(p.cfg.RetryDelay):
			}
		}
		if err := p.client.Publish(ctx, eventChannel, data).Err(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return errs.Wrap(errs.IoError, "publish event after retries", lastErr)
}

// Subscribe blocks, delivering every event published on the shared channel
// by any process to fn, until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, fn func(Event)) error {
	sub := p.client.Subscribe(ctx, eventChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			fn(event)
		}
	}
}

func (p *RedisPublisher) Close() error {
	if err := p.client.Close(); err != nil {
		return errs.Wrap(errs.IoError, "close redis publisher", err)
	}
	return nil
}
