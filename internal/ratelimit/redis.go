package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Store = (*Redis)(nil)

// Redis is a Store on the shared store. Each key is a sorted set of request
// events scored by Unix milliseconds. The set's TTL equals the window so idle
// keys expire on their own.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Name returns "redis".
func (r *Redis) Name() string { return "redis" }

// admitScript trims, counts, and conditionally records in one server-side step,
// so concurrent callers on the same key cannot both be admitted past the limit.
//
// KEYS[1] = window key
// ARGV[1] = cutoff score (ms); entries at or below it are dropped
// ARGV[2] = now score (ms)
// ARGV[3] = window (ms), used as key TTL
// ARGV[4] = limit
// ARGV[5] = unique member for this event
var admitScript = redis.NewScript(`
local key = KEYS[1]
redis.call("ZREMRANGEBYSCORE", key, "-inf", ARGV[1])
local count = redis.call("ZCARD", key) + 1
if count > tonumber(ARGV[4]) then
    return 0
end
redis.call("ZADD", key, ARGV[2], ARGV[5])
redis.call("PEXPIRE", key, ARGV[3])
return 1
`)

// Admit runs admitScript for key.
func (r *Redis) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := admitScript.Run(ctx, r.client, []string{key},
		strconv.FormatInt(cutoff, 10),
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(max(1, window.Milliseconds()), 10),
		strconv.Itoa(limit),
		member,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit/redis: admit: %w", err)
	}
	return res == 1, nil
}

// Count trims and counts key's window in one MULTI/EXEC without recording.
func (r *Redis) Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	cutoff := strconv.FormatInt(now.UnixMilli()-window.Milliseconds(), 10)
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		card = p.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ratelimit/redis: count: %w", err)
	}
	return int(card.Val()), nil
}

// Reset deletes key's window.
func (r *Redis) Reset(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit/redis: reset: %w", err)
	}
	return n > 0, nil
}
