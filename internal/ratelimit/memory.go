package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// window holds the ordered request timestamps for one key.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time // ascending
	lastUsed time.Time
	dropped  bool // removed from the map by Reset or EvictStale
}

// trim drops timestamps at or before cutoff.
func (w *window) trim(cutoff time.Time) {
	i := sort.Search(len(w.stamps), func(i int) bool { return w.stamps[i].After(cutoff) })
	if i == 0 {
		return
	}
	w.stamps = append(w.stamps[:0], w.stamps[i:]...)
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is an in-process Store. It is safe for concurrent use; windows are
// lost on restart and are not shared between processes.
type Memory struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{windows: make(map[string]*window)}
}

// Name returns "memory".
func (m *Memory) Name() string { return "memory" }

// getOrCreate returns the window for key, creating one if needed.
func (m *Memory) getOrCreate(key string) *window {
	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock.
	if w, ok := m.windows[key]; ok {
		return w
	}
	w = &window{}
	m.windows[key] = w
	return w
}

// lockLive returns key's window locked. A window dropped between lookup and
// lock is abandoned for the one now in the map.
func (m *Memory) lockLive(key string) *window {
	for {
		w := m.getOrCreate(key)
		w.mu.Lock()
		if !w.dropped {
			return w
		}
		w.mu.Unlock()
	}
}

// Admit records now for key if the trimmed window has room.
func (m *Memory) Admit(_ context.Context, key string, limit int, win time.Duration, now time.Time) (bool, error) {
	w := m.lockLive(key)
	defer w.mu.Unlock()

	w.lastUsed = now
	w.trim(now.Add(-win))
	if len(w.stamps)+1 > limit {
		return false, nil
	}
	w.stamps = append(w.stamps, now)
	return true, nil
}

// Count returns the number of timestamps in the trimmed window.
func (m *Memory) Count(_ context.Context, key string, win time.Duration, now time.Time) (int, error) {
	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now.Add(-win))
	return len(w.stamps), nil
}

// Reset removes key's window.
func (m *Memory) Reset(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	w, ok := m.windows[key]
	delete(m.windows, key)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropped = true
	return len(w.stamps) > 0, nil
}

// EvictStale removes windows not touched by Admit since cutoff. Callers pick
// a cutoff older than the longest profile window so no live timestamp is lost.
func (m *Memory) EvictStale(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for k, w := range m.windows {
		w.mu.Lock()
		if w.lastUsed.Before(cutoff) {
			w.dropped = true
			delete(m.windows, k)
			evicted++
		}
		w.mu.Unlock()
	}
	return evicted
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.windows)
}
