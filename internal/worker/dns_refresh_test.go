package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/dnscache"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []bool
}

func (f *fakeRefresher) Refresh(clearUnused bool) {
	f.mu.Lock()
	f.calls = append(f.calls, clearUnused)
	f.mu.Unlock()
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDNSRefresher_Ticks(t *testing.T) {
	t.Parallel()
	r := &fakeRefresher{}
	w := NewDNSRefresher(r, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for r.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("refresher did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, clear := range r.calls {
		if !clear {
			t.Errorf("call %d: clearUnused = false, want true", i)
		}
	}
}

func TestDNSRefresher_Defaults(t *testing.T) {
	t.Parallel()
	w := NewDNSRefresher(&dnscache.Resolver{}, 0)
	if w.interval != defaultDNSRefreshInterval {
		t.Errorf("interval = %v, want %v", w.interval, defaultDNSRefreshInterval)
	}
	if w.Name() != "dns_refresh" {
		t.Errorf("Name() = %q", w.Name())
	}
}
