package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemory_EvictStale(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	m.Admit(ctx, "fresh", 10, time.Minute, now)
	m.Admit(ctx, "stale", 10, time.Minute, now.Add(-2*time.Hour))

	evicted := m.EvictStale(now.Add(-1 * time.Hour))
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}

	m.mu.RLock()
	_, hasFresh := m.windows["fresh"]
	_, hasStale := m.windows["stale"]
	m.mu.RUnlock()

	if !hasFresh {
		t.Error("fresh window should not be evicted")
	}
	if hasStale {
		t.Error("stale window should be evicted")
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestMemory_TrimBoundary(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Admit(ctx, "k", 1, time.Minute, start)

	// Exactly one window later the first event is outside (now-window, now].
	if n, _ := m.Count(ctx, "k", time.Minute, start.Add(time.Minute)); n != 0 {
		t.Errorf("count at boundary = %d, want 0", n)
	}
}

func TestMemory_CountUnknownKey(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	n, err := m.Count(context.Background(), "missing", time.Minute, time.Now())
	if err != nil || n != 0 {
		t.Errorf("count = %d, %v; want 0, nil", n, err)
	}
	if m.Len() != 0 {
		t.Error("count must not create windows")
	}
}

func TestMemory_AdmitAfterConcurrentEviction(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	// Hold the new window so Admit looks it up and then waits on its lock.
	w := m.getOrCreate("k")
	w.mu.Lock()
	done := make(chan bool, 1)
	go func() {
		ok, _ := m.Admit(ctx, "k", 1, time.Minute, now)
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)

	// Drop it the way EvictStale does, which would block on w.mu here.
	m.mu.Lock()
	w.dropped = true
	delete(m.windows, "k")
	m.mu.Unlock()
	w.mu.Unlock()

	if !<-done {
		t.Fatal("first admit denied")
	}
	if len(w.stamps) != 0 {
		t.Errorf("dropped window got %d stamps, want 0", len(w.stamps))
	}
	if n, _ := m.Count(ctx, "k", time.Minute, now); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if ok, _ := m.Admit(ctx, "k", 1, time.Minute, now); ok {
		t.Error("second admit allowed past limit 1")
	}
}

func TestMemory_ResetDropsWindow(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	m.Admit(ctx, "k", 5, time.Minute, now)
	w := m.getOrCreate("k")
	if ok, _ := m.Reset(ctx, "k"); !ok {
		t.Fatal("reset = false, want true")
	}
	if !w.dropped {
		t.Error("reset window not marked dropped")
	}
	m.Admit(ctx, "k", 5, time.Minute, now)
	if n, _ := m.Count(ctx, "k", time.Minute, now); n != 1 {
		t.Errorf("count after reset = %d, want 1", n)
	}
}
