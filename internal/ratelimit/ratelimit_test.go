package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// limiters returns a fresh Limiter per backend, sharing one fake clock per limiter.
func limiters(t *testing.T) map[string]func(t *testing.T) (*Limiter, *fakeClock) {
	t.Helper()
	return map[string]func(t *testing.T) (*Limiter, *fakeClock){
		"memory": func(t *testing.T) (*Limiter, *fakeClock) {
			clk := newFakeClock()
			return NewWithStore(NewMemory(), Options{Now: clk.Now}), clk
		},
		"redis": func(t *testing.T) (*Limiter, *fakeClock) {
			client, _ := newTestRedisClient(t)
			clk := newFakeClock()
			return NewWithStore(NewRedis(client), Options{Now: clk.Now}), clk
		},
	}
}

func TestLimiter_LoginScenario(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, _ := mk(t)
			ctx := context.Background()

			for i := range 5 {
				if !l.Allow(ctx, "login:user1", 5, 300*time.Second) {
					t.Fatalf("request %d should be allowed", i+1)
				}
			}
			if l.Allow(ctx, "login:user1", 5, 300*time.Second) {
				t.Error("6th request should be denied")
			}
			if got := l.Remaining(ctx, "login:user1", 5, 300*time.Second); got != 0 {
				t.Errorf("remaining = %d, want 0", got)
			}
		})
	}
}

func TestLimiter_SlidingRecovery(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, clk := mk(t)
			ctx := context.Background()
			const window = 60 * time.Second

			if !l.Allow(ctx, "k", 2, window) {
				t.Fatal("first request should be allowed")
			}
			clk.Advance(30 * time.Second)
			if !l.Allow(ctx, "k", 2, window) {
				t.Fatal("second request should be allowed")
			}
			if l.Allow(ctx, "k", 2, window) {
				t.Fatal("third request should be denied")
			}

			// The first event leaves the window; the second is still inside.
			clk.Advance(30 * time.Second)
			if !l.Allow(ctx, "k", 2, window) {
				t.Error("request should be allowed once the oldest event slides out")
			}
			if l.Allow(ctx, "k", 2, window) {
				t.Error("window should be full again")
			}
		})
	}
}

func TestLimiter_RemainingCountsDown(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, _ := mk(t)
			ctx := context.Background()
			const limit = 3

			if got := l.Remaining(ctx, "k", limit, time.Minute); got != limit {
				t.Fatalf("initial remaining = %d, want %d", got, limit)
			}
			for i := range limit + 2 {
				l.Allow(ctx, "k", limit, time.Minute)
				want := max(0, limit-(i+1))
				if got := l.Remaining(ctx, "k", limit, time.Minute); got != want {
					t.Errorf("after %d calls remaining = %d, want %d", i+1, got, want)
				}
			}
		})
	}
}

func TestLimiter_DeniedNotRecorded(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, clk := mk(t)
			ctx := context.Background()

			l.Allow(ctx, "k", 1, time.Minute)
			for range 5 {
				clk.Advance(10 * time.Second)
				l.Allow(ctx, "k", 1, time.Minute)
			}
			// Only the first (admitted) event exists; it leaves the window at +60s.
			clk.Advance(11 * time.Second)
			if !l.Allow(ctx, "k", 1, time.Minute) {
				t.Error("denied attempts must not extend the window")
			}
		})
	}
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, _ := mk(t)
			ctx := context.Background()

			for range 3 {
				l.Allow(ctx, "k", 3, time.Minute)
			}
			if l.Allow(ctx, "k", 3, time.Minute) {
				t.Fatal("key should be exhausted")
			}
			if !l.Reset(ctx, "k") {
				t.Error("reset of tracked key should be true")
			}
			if got := l.Remaining(ctx, "k", 3, time.Minute); got != 3 {
				t.Errorf("remaining after reset = %d, want 3", got)
			}
			if !l.Allow(ctx, "k", 3, time.Minute) {
				t.Error("key should be allowed after reset")
			}
			if l.Reset(ctx, "missing") {
				t.Error("reset of unknown key should be false")
			}
		})
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, _ := mk(t)
			ctx := context.Background()

			l.Allow(ctx, "a", 1, time.Minute)
			if !l.Allow(ctx, "b", 1, time.Minute) {
				t.Error("keys must not share a window")
			}
		})
	}
}

func TestLimiter_ConcurrentNoDoubleAdmit(t *testing.T) {
	t.Parallel()
	for name, mk := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, _ := mk(t)
			ctx := context.Background()
			const limit = 10

			var admitted atomic.Int64
			var wg sync.WaitGroup
			for range 50 {
				wg.Go(func() {
					if l.Allow(ctx, "hot", limit, time.Minute) {
						admitted.Add(1)
					}
				})
			}
			wg.Wait()

			if got := admitted.Load(); got != limit {
				t.Errorf("admitted = %d, want %d", got, limit)
			}
		})
	}
}

func TestRedis_WindowTTL(t *testing.T) {
	t.Parallel()
	client, mr := newTestRedisClient(t)
	s := NewRedis(client)

	ok, err := s.Admit(context.Background(), "k", 5, 5*time.Minute, time.Now())
	if err != nil || !ok {
		t.Fatalf("admit: ok=%v err=%v", ok, err)
	}
	if got := mr.TTL("k"); got != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m", got)
	}
	members, err := mr.ZMembers("k")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 {
		t.Errorf("members = %v, want 1", members)
	}
}

type recordingObserver struct {
	rejects, errs atomic.Int64
}

func (o *recordingObserver) RateLimitReject(string)    { o.rejects.Add(1) }
func (o *recordingObserver) StoreError(string, string) { o.errs.Add(1) }

func TestLimiter_FailOpen(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	obs := &recordingObserver{}
	l := NewWithStore(NewRedis(client), Options{Observer: obs, OpTimeout: 200 * time.Millisecond})
	mr.Close()

	ctx := context.Background()
	for range 10 {
		if !l.Allow(ctx, "k", 1, time.Minute) {
			t.Fatal("allow should fail open when the store is down")
		}
	}
	if got := l.Remaining(ctx, "k", 7, time.Minute); got != 7 {
		t.Errorf("remaining = %d, want full quota 7", got)
	}
	if l.Reset(ctx, "k") {
		t.Error("reset should report false when the store is down")
	}
	if obs.errs.Load() != 12 {
		t.Errorf("store errors = %d, want 12", obs.errs.Load())
	}
}

func TestLimiter_Check(t *testing.T) {
	t.Parallel()
	if err := NewWithStore(NewMemory(), Options{}).Check(context.Background()); err != nil {
		t.Errorf("memory check: %v", err)
	}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	l := NewWithStore(NewRedis(client), Options{OpTimeout: 200 * time.Millisecond})
	if err := l.Check(context.Background()); err != nil {
		t.Errorf("redis check: %v", err)
	}
	mr.Close()
	if err := l.Check(context.Background()); err == nil {
		t.Error("check should report a down store")
	}
}

func TestLimiter_AllowProfile(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	l := NewWithStore(NewMemory(), Options{Observer: obs})
	ctx := context.Background()

	for i := range 5 {
		d := l.AllowProfile(ctx, ProfileLogin, "user1")
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		if d.Limit != 5 || d.Window != 5*time.Minute {
			t.Errorf("decision = %+v, want login profile", d)
		}
		if d.Remaining != 4-i {
			t.Errorf("remaining = %d, want %d", d.Remaining, 4-i)
		}
	}
	d := l.AllowProfile(ctx, ProfileLogin, "user1")
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("6th attempt = %+v, want denied with 0 remaining", d)
	}
	if obs.rejects.Load() != 1 {
		t.Errorf("rejects = %d, want 1", obs.rejects.Load())
	}

	// Bucket key is "<profile>:<identity>".
	if got := l.Remaining(ctx, Key(ProfileLogin, "user1"), 5, 5*time.Minute); got != 0 {
		t.Errorf("remaining via raw key = %d, want 0", got)
	}
}

func TestLimiter_UnknownProfileFallsBack(t *testing.T) {
	t.Parallel()
	l := NewWithStore(NewMemory(), Options{})
	if got, want := l.Profile("nope"), l.Profile(ProfileAPIGeneral); got != want {
		t.Errorf("profile = %+v, want %+v", got, want)
	}
}

func TestNew_Selection(t *testing.T) {
	t.Parallel()
	client, _ := newTestRedisClient(t)
	if got := New(context.Background(), Options{Client: client}).Backend(); got != "redis" {
		t.Errorf("backend = %q, want redis", got)
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	dead := goredis.NewClient(&goredis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { dead.Close() })
	if got := New(context.Background(), Options{Client: dead, ProbeTimeout: 200 * time.Millisecond}).Backend(); got != "memory" {
		t.Errorf("backend = %q, want memory", got)
	}

	if got := New(context.Background(), Options{}).Backend(); got != "memory" {
		t.Errorf("backend = %q, want memory", got)
	}
}

func BenchmarkMemoryAllow(b *testing.B) {
	l := NewWithStore(NewMemory(), Options{})
	ctx := context.Background()
	for b.Loop() {
		l.Allow(ctx, "bench", 1_000_000, time.Minute)
	}
}
