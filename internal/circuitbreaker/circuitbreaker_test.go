package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type transitions struct {
	mu  sync.Mutex
	got []State
}

func (o *transitions) BreakerStateChange(_ string, _, to State) {
	o.mu.Lock()
	o.got = append(o.got, to)
	o.mu.Unlock()
}

func newTestBreaker(cfg Config, obs Observer) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("test", cfg, obs)
	b.now = clk.now
	return b, clk
}

var testConfig = Config{
	ErrorThreshold: 0.30,
	MinSamples:     10,
	Window:         60 * time.Second,
	OpenTimeout:    30 * time.Second,
}

func TestWindow_Rate(t *testing.T) {
	t.Parallel()

	w := newWindow(time.Minute)
	now := time.Unix(1_700_000_000, 0)

	// 7 successes + 3 errors (weight 1.0) = 30% error rate.
	for range 7 {
		w.add(0, now)
	}
	for range 3 {
		w.add(1.0, now)
	}

	rate, calls := w.rate(now)
	if calls != 10 {
		t.Fatalf("calls = %d, want 10", calls)
	}
	if rate < 0.29 || rate > 0.31 {
		t.Fatalf("rate = %f, want ~0.30", rate)
	}
}

func TestWindow_Expiry(t *testing.T) {
	t.Parallel()

	w := newWindow(5 * time.Second)
	base := time.Unix(1_700_000_000, 0)
	w.add(1.0, base)

	if _, calls := w.rate(base.Add(4 * time.Second)); calls != 1 {
		t.Fatalf("calls at +4s = %d, want 1", calls)
	}
	rate, calls := w.rate(base.Add(6 * time.Second))
	if calls != 0 || rate != 0 {
		t.Fatalf("at +6s: calls=%d rate=%f, want 0/0", calls, rate)
	}
}

func TestWindow_SizeClamp(t *testing.T) {
	t.Parallel()

	for _, d := range []time.Duration{0, time.Hour, 500 * time.Millisecond} {
		if w := newWindow(d); w.size != 60 {
			t.Errorf("newWindow(%v).size = %d, want 60", d, w.size)
		}
	}
}

func TestBreaker_ClosedAllows(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig, nil)
	if !b.Allow() {
		t.Fatal("closed breaker should allow")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensOnThreshold(t *testing.T) {
	t.Parallel()

	obs := &transitions{}
	b, _ := newTestBreaker(testConfig, obs)

	for range 7 {
		b.Record(0)
	}
	for range 3 {
		b.Record(1.0)
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject")
	}
	if len(obs.got) != 1 || obs.got[0] != StateOpen {
		t.Errorf("transitions = %v, want [open]", obs.got)
	}
}

func TestBreaker_MinSamplesRequired(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig, nil)
	for range 9 {
		b.Record(1.0)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (below min samples)", b.State())
	}
}

func TestBreaker_HalfOpenProbeSuccess(t *testing.T) {
	t.Parallel()

	obs := &transitions{}
	b, clk := newTestBreaker(testConfig, obs)
	for range 10 {
		b.Record(1.0)
	}

	clk.advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("should reject before open timeout")
	}

	clk.advance(time.Second)
	if !b.Allow() {
		t.Fatal("should allow probe after open timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	if b.Allow() {
		t.Fatal("should reject while probe in flight")
	}

	b.Record(0)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after probe success", b.State())
	}
	// The window was reset, so a single error does not reopen.
	b.Record(1.0)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(obs.got) != len(want) {
		t.Fatalf("transitions = %v, want %v", obs.got, want)
	}
	for i := range want {
		if obs.got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, obs.got[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenProbeFailure(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(testConfig, nil)
	for range 10 {
		b.Record(1.0)
	}
	clk.advance(testConfig.OpenTimeout)

	if !b.Allow() {
		t.Fatal("should allow probe")
	}
	b.Record(1.0)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after probe failure", b.State())
	}
	if b.Allow() {
		t.Fatal("reopened breaker should reject")
	}
}

func TestBreaker_WeightedErrors(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig, nil)

	// 10 rate-limit responses at 0.5 plus 10 successes = 25% weighted, below 30%.
	for range 10 {
		b.Record(0.5)
		b.Record(0)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed at 25%%", b.State())
	}

	// One timeout pushes it to (5 + 1.5) / 21, just over 30%.
	b.Record(1.5)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreaker_Do(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{ErrorThreshold: 0.5, MinSamples: 2, Window: time.Minute, OpenTimeout: time.Minute}, nil)
	boom := errors.New("boom")

	calls := 0
	fail := func() error { calls++; return boom }
	for range 2 {
		if err := b.Do(fail); !errors.Is(err, boom) {
			t.Fatalf("Do = %v, want boom", err)
		}
	}
	if err := b.Do(fail); !errors.Is(err, ErrOpen) {
		t.Fatalf("Do on open breaker = %v, want ErrOpen", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	got := Config{}.withDefaults()
	if got != DefaultConfig() {
		t.Errorf("withDefaults() = %+v, want %+v", got, DefaultConfig())
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	t.Parallel()

	b := New("test", DefaultConfig(), nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 100 {
				if b.Allow() {
					b.Record(float64(i % 2))
				}
			}
		})
	}
	wg.Wait()
	_ = b.State()
}
