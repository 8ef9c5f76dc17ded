// Package cache provides a JSON value cache with per-key TTL over a shared Redis
// store or a local in-process store. Every operation is best-effort: backend
// failures are logged and reported as a miss or false, never as an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otakushelf/otakushelf/internal/sharedstore"
)

// DefaultTTL is applied when Set is called with a zero TTL.
const DefaultTTL = time.Hour

// Backend stores raw encoded values. Implementations return errors; the Cache
// wrapper owns the fail-open policy.
type Backend interface {
	// Get returns the stored bytes and whether the key was present and live.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores val for ttl. A negative ttl leaves the key absent.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete removes key and reports whether a live entry was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Clear removes every key the backend manages.
	Clear(ctx context.Context) error
	// Name identifies the backend ("redis" or "memory").
	Name() string
}

// Observer receives cache outcome events. Used for metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	StoreError(component, op string)
}

type nopObserver struct{}

func (nopObserver) CacheHit()                 {}
func (nopObserver) CacheMiss()                {}
func (nopObserver) StoreError(string, string) {}

// Options configures backend selection and the local fallback.
type Options struct {
	Client       *redis.Client    // shared store client; nil = local only
	ProbeTimeout time.Duration    // bound on the construction-time PING
	OpTimeout    time.Duration    // bound on every backend call
	MaxSize      int              // local store entry limit
	DefaultTTL   time.Duration    // TTL used when Set gets ttl == 0
	MaxTTL       time.Duration    // local store TTL ceiling
	Now          func() time.Time // clock for the local store; nil = time.Now
	Observer     Observer
}

// Cache is a key/value cache for JSON-serializable values.
// It is safe for concurrent use and meant to be shared process-wide.
type Cache struct {
	backend    Backend
	defaultTTL time.Duration
	opTimeout  time.Duration
	obs        Observer
}

// New selects the backend once: Redis when opts.Client answers a PING,
// otherwise the local in-process store. The choice is final for the
// lifetime of the Cache.
func New(ctx context.Context, opts Options) (*Cache, error) {
	var b Backend
	if opts.Client != nil {
		if err := sharedstore.Probe(ctx, opts.Client, opts.ProbeTimeout); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "shared store unreachable, cache falling back to memory",
				slog.String("error", err.Error()),
			)
		} else {
			b = NewRedis(opts.Client)
		}
	}
	if b == nil {
		m, err := NewMemory(MemoryOptions{MaxSize: opts.MaxSize, MaxTTL: opts.MaxTTL, Now: opts.Now})
		if err != nil {
			return nil, err
		}
		b = m
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "cache initialized", slog.String("backend", b.Name()))
	return NewWithBackend(b, opts), nil
}

// NewWithBackend wraps an explicit backend. Only the timeout, TTL and
// observer fields of opts are used.
func NewWithBackend(b Backend, opts Options) *Cache {
	c := &Cache{
		backend:    b,
		defaultTTL: opts.DefaultTTL,
		opTimeout:  opts.OpTimeout,
		obs:        opts.Observer,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.opTimeout <= 0 {
		c.opTimeout = sharedstore.DefaultOpTimeout
	}
	if c.obs == nil {
		c.obs = nopObserver{}
	}
	return c
}

// Backend returns the selected backend name.
func (c *Cache) Backend() string { return c.backend.Name() }

// Get decodes the cached value for key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.fail(ctx, "get", key, err)
		c.obs.CacheMiss()
		return false
	}
	if !ok {
		c.obs.CacheMiss()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.fail(ctx, "decode", key, err)
		c.obs.CacheMiss()
		return false
	}
	c.obs.CacheHit()
	return true
}

// Set stores val under key. A zero ttl means the default TTL; a negative ttl
// leaves the key absent. The memory backend clamps ttl to its MaxTTL
// (DefaultMaxTTL, 24h, unless configured) while Redis keeps it as given, so
// entries meant to outlive a day only do so on the shared store. Returns false
// when val cannot be encoded or the backend fails.
func (c *Cache) Set(ctx context.Context, key string, val any, ttl time.Duration) bool {
	data, err := json.Marshal(val)
	if err != nil {
		c.fail(ctx, "encode", key, err)
		return false
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.fail(ctx, "set", key, err)
		return false
	}
	return true
}

// Delete removes key and reports whether anything was removed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	ok, err := c.backend.Delete(ctx, key)
	if err != nil {
		c.fail(ctx, "delete", key, err)
		return false
	}
	return ok
}

// Clear drops every key the cache manages. With the Redis backend this
// flushes the whole configured database.
func (c *Cache) Clear(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.backend.Clear(ctx); err != nil {
		c.fail(ctx, "clear", "*", err)
		return false
	}
	return true
}

// GetOrSet decodes the cached value into dst, or on a miss calls produce once,
// stores its result for ttl and decodes that result into dst.
//
// Concurrent callers missing the same key may each call produce; the last
// write wins. Errors from produce are returned and nothing is cached.
func (c *Cache) GetOrSet(ctx context.Context, key string, dst any, produce func() (any, error), ttl time.Duration) error {
	if c.Get(ctx, key, dst) {
		return nil
	}
	v, err := produce()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	c.Set(ctx, key, json.RawMessage(data), ttl)
	return json.Unmarshal(data, dst)
}

// Load is the typed form of GetOrSet. A failed cache write does not fail the load.
func Load[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, produce func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, key, &v) {
		return v, nil
	}
	v, err := produce(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}

func (c *Cache) fail(ctx context.Context, op, key string, err error) {
	c.obs.StoreError("cache", op)
	slog.LogAttrs(ctx, slog.LevelError, "cache operation failed",
		slog.String("op", op),
		slog.String("backend", c.backend.Name()),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
