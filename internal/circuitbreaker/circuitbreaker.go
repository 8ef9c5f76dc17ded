// Package circuitbreaker guards calls to an upstream dependency with a
// weighted error-rate breaker. While open, calls fail immediately instead of
// waiting out a network timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Breaker.Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects every call until OpenTimeout has passed.
	StateOpen
	// StateHalfOpen lets a single probe call through.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker parameters. Zero fields take DefaultConfig values.
type Config struct {
	ErrorThreshold float64       // weighted error rate that trips the breaker
	MinSamples     int           // calls needed in the window before it can trip
	Window         time.Duration // error-rate window, whole seconds up to a minute
	OpenTimeout    time.Duration // time spent open before a probe is allowed
}

// DefaultConfig returns the defaults used for the identity core.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinSamples:     10,
		Window:         30 * time.Second,
		OpenTimeout:    15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = d.ErrorThreshold
	}
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	return c
}

// Observer is told about state transitions. Used for logs and metrics.
type Observer interface {
	BreakerStateChange(name string, from, to State)
}

// slot holds one second of outcomes.
type slot struct {
	weight float64
	calls  int
}

// window is a ring of one-second slots covering the error-rate window.
type window struct {
	slots [60]slot
	size  int
	head  int
	sec   int64 // unix second of slots[head]
}

func newWindow(d time.Duration) window {
	n := int(d / time.Second)
	if n <= 0 || n > 60 {
		n = 60
	}
	return window{size: n}
}

// roll moves head to sec, zeroing the slots skipped over.
func (w *window) roll(sec int64) {
	if w.sec == 0 {
		w.sec = sec
		return
	}
	gap := sec - w.sec
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.slots[(w.head+1+i)%w.size] = slot{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.sec = sec
}

func (w *window) add(weight float64, now time.Time) {
	w.roll(now.Unix())
	w.slots[w.head].calls++
	w.slots[w.head].weight += weight
}

// rate returns the weighted error rate and the call count in the window.
func (w *window) rate(now time.Time) (float64, int) {
	w.roll(now.Unix())
	var weight float64
	var calls int
	for i := range w.size {
		weight += w.slots[i].weight
		calls += w.slots[i].calls
	}
	if calls == 0 {
		return 0, 0
	}
	return weight / float64(calls), calls
}

func (w *window) reset() {
	clear(w.slots[:])
	w.head, w.sec = 0, 0
}

// Breaker is a closed/open/half-open state machine. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time
	obs  Observer

	mu       sync.Mutex
	state    State
	win      window
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker. name labels observer events.
func New(name string, cfg Config, obs Observer) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		obs:   obs,
		state: StateClosed,
		win:   newWindow(cfg.Window),
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker past its
// timeout turns half-open and admits the caller as the probe.
func (b *Breaker) Allow() bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record adds the outcome of an allowed call. Weight 0 is a success.
func (b *Breaker) Record(weight float64) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.add(weight, now)

	switch b.state {
	case StateClosed:
		if weight == 0 {
			return
		}
		rate, calls := b.win.rate(now)
		if calls >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.open(now)
		}
	case StateHalfOpen:
		b.probing = false
		if weight > 0 {
			b.open(now)
			return
		}
		b.setState(StateClosed)
		b.win.reset()
	}
}

// Do runs fn if the breaker allows it and records the classified outcome.
// It returns ErrOpen without calling fn while the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	b.Record(Weight(err))
	return err
}

func (b *Breaker) open(now time.Time) {
	b.openedAt = now
	b.setState(StateOpen)
}

// setState must be called with mu held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	if b.obs != nil {
		b.obs.BreakerStateChange(b.name, from, s)
	}
}
