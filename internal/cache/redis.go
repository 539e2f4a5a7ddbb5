// Package cache provides the Redis client and a small cache-aside helper.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"greenroom/internal/middleware"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// InitRedis connects to Redis at the given address. A failed ping leaves the
// client nil and the application degrades to uncached, unlimited operation.
func InitRedis(addr string) {
	if addr == "" {
		return
	}

	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without cache",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return
	}

	client = c
	middleware.Logger.Info("Redis connected", slog.String("addr", addr))
}

// GetClient returns the shared Redis client, or nil when Redis is not configured.
func GetClient() *redis.Client {
	return client
}

// SetClient overrides the shared client. Used by tests with miniredis.
func SetClient(c *redis.Client) {
	client = c
}

// Aside fills dest from cache when possible, otherwise invokes load and
// stores the result under key for ttl. Cache failures fall through to load.
func Aside(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() error) error {
	if client != nil {
		if raw, err := client.Get(ctx, key).Bytes(); err == nil {
			if err := json.Unmarshal(raw, dest); err == nil {
				return nil
			}
		}
	}

	if err := load(); err != nil {
		return err
	}

	if client != nil {
		if raw, err := json.Marshal(dest); err == nil {
			client.Set(ctx, key, raw, ttl)
		}
	}
	return nil
}

// Invalidate drops the given cache keys, best effort.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}
