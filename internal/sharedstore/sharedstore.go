// Package sharedstore opens and probes the optional shared Redis store used by the
// cache and rate limiter. Components call Probe once at construction and commit to
// either Redis or their local fallback for their whole lifetime.
package sharedstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned by Open when no store URL is set.
var ErrNotConfigured = errors.New("shared store not configured")

// Default timeouts applied when Options leaves them zero.
const (
	DefaultDialTimeout = 2 * time.Second
	DefaultOpTimeout   = 250 * time.Millisecond
)

// Options configures the shared store connection.
type Options struct {
	URL         string        // redis:// or rediss:// URL; empty = local-only mode
	DialTimeout time.Duration // connect and probe deadline
	OpTimeout   time.Duration // per-command read/write deadline
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	return o
}

// Open parses the URL and builds a client with bounded timeouts.
// It does not contact the server; use Probe for that.
func Open(opts Options) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, ErrNotConfigured
	}
	opts = opts.withDefaults()
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse shared store url: %w", err)
	}
	ro.DialTimeout = opts.DialTimeout
	ro.ReadTimeout = opts.OpTimeout
	ro.WriteTimeout = opts.OpTimeout
	ro.MaxRetries = 1
	return redis.NewClient(ro), nil
}

// Probe performs a single PING round-trip bounded by timeout.
// A nil client reports ErrNotConfigured.
func Probe(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	if client == nil {
		return ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping shared store: %w", err)
	}
	return nil
}
