package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	lperrors "github.com/logflow/logprune/pkg/errors"
)

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	Address string

	// Password for Redis authentication (optional).
	Password string

	// Database number to use (default: 0).
	Database int

	// Prefix is prepended to all keys.
	Prefix string

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// Timeout for Redis operations.
	Timeout time.Duration

	// PoolSize is the maximum number of connections.
	PoolSize int
}

// DefaultRedisConfig returns defaults for address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "logprune:results:",
		TTL:      7 * 24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 4,
	}
}

// RedisCache stores entries in Redis.
type RedisCache struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, lperrors.Wrap(err, lperrors.CodeCacheFailed, "failed to connect to Redis").
			WithContext("address", cfg.Address)
	}

	return &RedisCache{cfg: cfg, client: client}, nil
}

func (r *RedisCache) key(k string) string {
	return r.cfg.Prefix + k
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, lperrors.Wrap(err, lperrors.CodeCacheFailed, "redis get failed").WithContext("key", key)
	}
	return data, true, nil
}

// Set stores value and refreshes the entry's TTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(key), value, r.cfg.TTL).Err(); err != nil {
		return lperrors.Wrap(err, lperrors.CodeCacheFailed, "redis set failed").WithContext("key", key)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
