package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry wraps a cached value with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Defaults for the local store.
const (
	DefaultMaxSize = 10_000
	DefaultMaxTTL  = 24 * time.Hour
)

// MemoryOptions configures the local store.
type MemoryOptions struct {
	MaxSize int              // maximum entry count (W-TinyLFU eviction beyond it)
	MaxTTL  time.Duration    // longer TTLs are clamped to this
	Now     func() time.Time // nil = time.Now
}

// Memory is an in-memory W-TinyLFU cache backed by otter.
// Per-entry expiry is checked lazily on read against its own clock, so an
// expired entry is purged the first time it is looked up.
type Memory struct {
	cache  *otter.Cache[string, entry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemory creates an in-memory cache backend.
func NewMemory(opts MemoryOptions) (*Memory, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = DefaultMaxTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	// otter's own expiry only reclaims memory; it never fires before maxTTL.
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      opts.MaxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](opts.MaxTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c, maxTTL: opts.MaxTTL, now: opts.Now}, nil
}

// Name returns "memory".
func (m *Memory) Name() string { return "memory" }

// Get retrieves a value if present and not expired. Expired entries are purged.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.cache.Invalidate(key)
		return nil, false, nil
	}
	return e.data, true, nil
}

// Set stores a value with per-entry TTL, clamped to MaxTTL.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	ttl = min(ttl, m.maxTTL)
	m.cache.Set(key, entry{
		data:      val,
		expiresAt: m.now().Add(ttl),
	})
	return nil
}

// Delete removes a value and reports whether a live entry was removed.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	e, ok := m.cache.Invalidate(key)
	if !ok {
		return false, nil
	}
	return m.now().Before(e.expiresAt), nil
}

// Clear removes all values.
func (m *Memory) Clear(_ context.Context) error {
	m.cache.InvalidateAll()
	return nil
}
