package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface checks.
var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Redis)(nil)
)

// Redis is a cache backend on the shared store. Expiry is delegated to Redis
// (SET with EX/PX); no local copy is kept.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed cache backend.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Name returns "redis".
func (r *Redis) Name() string { return "redis" }

// Get fetches the raw value for key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes val with ttl. TTLs under a millisecond cannot be expressed in
// Redis, so the key is deleted instead.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < time.Millisecond {
		return r.client.Del(ctx, key).Err()
	}
	return r.client.Set(ctx, key, val, ttl).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear flushes the configured Redis database.
func (r *Redis) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}
