// Package ratelimit implements sliding-window admission control per key, over a
// shared Redis store or a local in-process store. Backend failures fail open:
// a request is admitted rather than blocked when the store cannot answer.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otakushelf/otakushelf/internal/sharedstore"
)

// Store records request timestamps per key.
type Store interface {
	// Admit trims timestamps at or before now-window, and records now if the
	// window then holds fewer than limit entries. Check and record are one step.
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error)
	// Count trims like Admit and returns the number of timestamps left, without recording.
	Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	// Reset removes all timestamps for key and reports whether any existed.
	Reset(ctx context.Context, key string) (bool, error)
	// Name identifies the backend ("redis" or "memory").
	Name() string
}

// Observer receives limiter events. Used for metrics.
type Observer interface {
	RateLimitReject(profile string)
	StoreError(component, op string)
}

type nopObserver struct{}

func (nopObserver) RateLimitReject(string)    {}
func (nopObserver) StoreError(string, string) {}

// Options configures backend selection.
type Options struct {
	Client       *redis.Client      // shared store client; nil = local only
	ProbeTimeout time.Duration      // bound on the construction-time PING
	OpTimeout    time.Duration      // bound on every backend call
	Profiles     map[string]Profile // nil = DefaultProfiles()
	Now          func() time.Time   // nil = time.Now
	Observer     Observer
}

// Decision is the outcome of a profile check, carrying what HTTP
// middleware needs for rate-limit headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Window    time.Duration
}

// Limiter enforces "at most N events per sliding window" per key.
// It is safe for concurrent use and meant to be shared process-wide.
type Limiter struct {
	store     Store
	profiles  map[string]Profile
	now       func() time.Time
	opTimeout time.Duration
	obs       Observer
}

// New selects the backend once: Redis when opts.Client answers a PING,
// otherwise the local in-process store.
func New(ctx context.Context, opts Options) *Limiter {
	var s Store
	if opts.Client != nil {
		if err := sharedstore.Probe(ctx, opts.Client, opts.ProbeTimeout); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "shared store unreachable, rate limiter falling back to memory",
				slog.String("error", err.Error()),
			)
		} else {
			s = NewRedis(opts.Client)
		}
	}
	if s == nil {
		s = NewMemory()
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "rate limiter initialized", slog.String("backend", s.Name()))
	return NewWithStore(s, opts)
}

// NewWithStore wraps an explicit store.
func NewWithStore(s Store, opts Options) *Limiter {
	l := &Limiter{
		store:     s,
		profiles:  opts.Profiles,
		now:       opts.Now,
		opTimeout: opts.OpTimeout,
		obs:       opts.Observer,
	}
	if l.profiles == nil {
		l.profiles = DefaultProfiles()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.opTimeout <= 0 {
		l.opTimeout = sharedstore.DefaultOpTimeout
	}
	if l.obs == nil {
		l.obs = nopObserver{}
	}
	return l
}

// Backend returns the selected store name.
func (l *Limiter) Backend() string { return l.store.Name() }

// Store returns the underlying store.
func (l *Limiter) Store() Store { return l.store }

// Allow reports whether one more event for key fits in the sliding window and,
// if so, records it. The event being checked counts against limit, so the
// limit-th event in a window is the last one admitted. Fails open.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	ok, err := l.store.Admit(ctx, key, limit, window, l.now())
	if err != nil {
		l.fail(ctx, "allow", key, err)
		return true
	}
	return ok
}

// Remaining returns how many more events key may make in the current window.
// On store failure it reports the full limit.
func (l *Limiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) int {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	n, err := l.store.Count(ctx, key, window, l.now())
	if err != nil {
		l.fail(ctx, "remaining", key, err)
		return limit
	}
	return max(0, limit-n)
}

// Reset clears key's window and reports whether anything was removed.
func (l *Limiter) Reset(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	ok, err := l.store.Reset(ctx, key)
	if err != nil {
		l.fail(ctx, "reset", key, err)
		return false
	}
	return ok
}

// Check reads from the store without failing open and returns any error.
// Used by health checks, where a masked failure would be misleading.
func (l *Limiter) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	_, err := l.store.Count(ctx, Key("health", "check"), time.Minute, l.now())
	return err
}

// AllowProfile checks identity against a named profile. The bucket key is
// "<profile>:<identity>". Unknown profiles use ProfileAPIGeneral.
func (l *Limiter) AllowProfile(ctx context.Context, profile, identity string) Decision {
	p := l.Profile(profile)
	key := Key(profile, identity)
	d := Decision{
		Allowed: l.Allow(ctx, key, p.Limit, p.Window),
		Limit:   p.Limit,
		Window:  p.Window,
	}
	d.Remaining = l.Remaining(ctx, key, p.Limit, p.Window)
	if !d.Allowed {
		l.obs.RateLimitReject(profile)
	}
	return d
}

// Profile returns the named profile, falling back to ProfileAPIGeneral.
func (l *Limiter) Profile(name string) Profile {
	if p, ok := l.profiles[name]; ok {
		return p
	}
	return l.profiles[ProfileAPIGeneral]
}

// Key builds the bucket key for a profile and caller identity.
func Key(profile, identity string) string {
	return profile + ":" + identity
}

func (l *Limiter) fail(ctx context.Context, op, key string, err error) {
	l.obs.StoreError("ratelimit", op)
	slog.LogAttrs(ctx, slog.LevelError, "rate limit check failed, allowing",
		slog.String("op", op),
		slog.String("backend", l.store.Name()),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
