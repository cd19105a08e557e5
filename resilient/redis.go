package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces cache keys in a shared Redis.
const redisKeyPrefix = "semtrip:cache:"

// RedisCache shares cached payloads between processes. Redis expiry
// provides the TTL; lookups never return expired entries.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache connects to the Redis instance at url and verifies it with
// a ping.
func NewRedisCache(ctx context.Context, url string, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}, nil
}

// Get returns an unexpired payload. Redis errors are treated as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis cache read failed", "error", err)
		}
		return nil, false
	}
	return payload, true
}

// Set stores payload for ttl. Write failures are logged and ignored.
func (c *RedisCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", "error", err)
	}
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
