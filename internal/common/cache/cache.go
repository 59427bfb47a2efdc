// internal/common/cache/cache.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client used as a TTL cache for analytics API results.
type Cache struct {
	Client *redis.Client
}

// Options configures the Redis connection.
type Options struct {
	Address  string
	Password string
	DB       int
}

// New creates a new Redis-backed cache.
func New(opts Options) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	return &Cache{Client: rdb}
}

// Ping tests the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get retrieves a value by key. Returns redis.Nil wrapped error on miss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// IsMiss reports whether err represents a cache miss.
func IsMiss(err error) bool {
	return err == redis.Nil
}

// Set stores a value with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
