package persist

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RedisClient defines the Redis operations the backend needs. The
// interface is compatible with github.com/redis/go-redis/v9, so a
// *redis.Client satisfies it without this package depending on the
// driver.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd
	Get(ctx context.Context, key string) RedisStringCmd
	Del(ctx context.Context, keys ...string) RedisIntCmd
	Close() error
}

// RedisStatusCmd represents a Redis status command result.
type RedisStatusCmd interface {
	Err() error
}

// RedisStringCmd represents a Redis string command result.
type RedisStringCmd interface {
	Bytes() ([]byte, error)
	Err() error
}

// RedisIntCmd represents a Redis int command result.
type RedisIntCmd interface {
	Err() error
}

// ErrRedisNil is the missing-key error. It matches redis.Nil from
// go-redis by message, since the driver's sentinel cannot be referenced
// here.
var ErrRedisNil = errors.New("redis: nil")

// RedisBackend stores keys in Redis. Suitable when persistent state
// must be shared across server instances.
type RedisBackend struct {
	client RedisClient
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	closed bool
}

// RedisOption configures RedisBackend behavior.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
	ttl    time.Duration
}

// WithRedisPrefix sets the key prefix. Default: "tether:state:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// WithRedisTTL sets an expiration on every written key. Default: no
// expiration, state lives until deleted.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = ttl
	}
}

// NewRedisBackend creates a Redis-backed store around an existing
// client. The backend never closes the client; it may be shared.
func NewRedisBackend(client RedisClient, opts ...RedisOption) *RedisBackend {
	cfg := &redisConfig{
		prefix: "tether:state:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisBackend{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
	}
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + key
}

func (r *RedisBackend) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Read returns the value for key, or ErrNotFound for a missing key.
func (r *RedisBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, ErrRedisNil) || err.Error() == ErrRedisNil.Error() {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write stores data under key, with the configured TTL if any.
func (r *RedisBackend) Write(ctx context.Context, key string, data []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

// Delete removes key.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if r.isClosed() {
		return ErrClosed
	}
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close marks the backend closed. The underlying client is left open
// for its other users.
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
