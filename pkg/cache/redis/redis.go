// Package redis implements the primary cache backend on go-redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a Redis-backed cache backend. Values are stored as opaque
// bytes with an absolute expiry.
type Cache struct {
	client *goredis.Client
	logger *zap.Logger
}

// New wraps an already-connected client.
func New(client *goredis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Get returns the stored value, or (nil, nil) when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether the key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes the key; it reports whether a key was removed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping probes the server.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Name identifies the backend in logs and metrics.
func (c *Cache) Name() string { return "redis" }

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
