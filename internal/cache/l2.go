package cache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"github.com/rybkr/logarc/internal/errs"
)

const (
	invalidationChannel          = "logarc:cache:invalidate"
	invalidationWorkspaceChannel = "logarc:cache:invalidate-workspace"
)

// l2Store is the remote KV tier: a Redis client used both for value
// storage and as the transport for cross-process invalidation pub/sub.
type l2Store struct {
	client *redis.Client

	hits   int64
	misses int64
}

// NewL2 connects to the Redis instance at url (a redis:// URL as accepted
// by redis.ParseURL).
func NewL2(url string) (*l2Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "parse L2 cache url", err)
	}
	return &l2Store{client: redis.NewClient(opts)}, nil
}

func (l *l2Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := l.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&l.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := maybeDecompress(raw)
	if err != nil {
		return nil, false, err
	}
	atomic.AddInt64(&l.hits, 1)
	return value, true, nil
}

// counts returns the cumulative L2 hit/miss totals for Cache.Stats.
func (l *l2Store) counts() (hits, misses int64) {
	return atomic.LoadInt64(&l.hits), atomic.LoadInt64(&l.misses)
}

func (l *l2Store) put(ctx context.Context, key string, value []byte, cfg Config) error {
	payload := value
	if cfg.EnableCompression && len(value) >= cfg.CompressionThreshold {
		compressed, err := compress(value)
		if err != nil {
			return err
		}
		payload = compressed
	}
	ttl := cfg.TTL
	return l.client.Set(ctx, key, payload, ttl).Err()
}

func (l *l2Store) invalidate(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return l.client.Publish(ctx, invalidationChannel, key).Err()
}

func (l *l2Store) invalidateWorkspace(ctx context.Context, workspace string) error {
	return l.client.Publish(ctx, invalidationWorkspaceChannel, workspace).Err()
}

// subscribe applies invalidations published by other processes to the
// local L1 store. Blocks until ctx is done.
func (l *l2Store) subscribe(ctx context.Context, l1 *l1Store, logger *slog.Logger) {
	sub := l.client.Subscribe(ctx, invalidationChannel, invalidationWorkspaceChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch msg.Channel {
			case invalidationChannel:
				l1.remove(msg.Payload)
			case invalidationWorkspaceChannel:
				l1.removeWorkspace(msg.Payload)
			default:
				logger.Warn("unexpected cache invalidation channel", "channel", msg.Channel)
			}
		}
	}
}

func (l *l2Store) close() error {
	return l.client.Close()
}

// zstdMagicPrefix tags compressed payloads so get can tell them apart from
// values stored before compression was enabled, or below the threshold.
var zstdMagicPrefix = []byte{0x28, 0xb5, 0x2f, 0xfd}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create zstd writer", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, errs.Wrap(errs.Internal, "compress cache entry", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.Internal, "flush zstd writer", err)
	}
	return buf.Bytes(), nil
}

func maybeDecompress(raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, zstdMagicPrefix) {
		return raw, nil
	}
	r, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create zstd reader", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "decompress cache entry", err)
	}
	return out, nil
}
