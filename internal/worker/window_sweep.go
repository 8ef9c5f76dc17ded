package worker

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// StaleEvicter drops idle rate-limit windows. Implemented by ratelimit.Memory.
type StaleEvicter interface {
	EvictStale(cutoff time.Time) int
}

// SweepObserver is told how many windows each sweep removed.
type SweepObserver interface {
	WindowsSwept(n int)
}

// WindowSweeper periodically evicts local rate-limit windows idle for longer
// than maxIdle. maxIdle must exceed the longest profile window.
type WindowSweeper struct {
	store    StaleEvicter
	maxIdle  time.Duration
	interval time.Duration
	now      func() time.Time
	obs      SweepObserver
}

// NewWindowSweeper creates a WindowSweeper. A zero interval uses the default.
func NewWindowSweeper(store StaleEvicter, maxIdle, interval time.Duration) *WindowSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &WindowSweeper{store: store, maxIdle: maxIdle, interval: interval, now: time.Now}
}

// WithObserver attaches an observer and returns w.
func (w *WindowSweeper) WithObserver(obs SweepObserver) *WindowSweeper {
	w.obs = obs
	return w
}

// Name returns the worker identifier.
func (w *WindowSweeper) Name() string { return "window_sweep" }

// Run sweeps on every tick until ctx is cancelled.
func (w *WindowSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *WindowSweeper) sweep(ctx context.Context) {
	n := w.store.EvictStale(w.now().Add(-w.maxIdle))
	if w.obs != nil {
		w.obs.WindowsSwept(n)
	}
	if n > 0 {
		slog.LogAttrs(ctx, slog.LevelDebug, "evicted idle rate limit windows",
			slog.Int("count", n),
		)
	}
}
