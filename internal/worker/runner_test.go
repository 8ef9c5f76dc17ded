package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// stubWorker runs fn, or blocks until cancelled when fn is nil.
type stubWorker struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *stubWorker) Run(ctx context.Context) error {
	if s.fn != nil {
		return s.fn(ctx)
	}
	<-ctx.Done()
	return nil
}

// labelled reports a name; plain stubWorker does not.
type labelled struct{ stubWorker }

func (l *labelled) Name() string { return l.name }

func runAsync(r *Runner) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
		return nil
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	t.Parallel()
	cancel, done := runAsync(NewRunner(&stubWorker{}))
	cancel()
	if err := wait(t, done); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunner_AddedWorkerRuns(t *testing.T) {
	t.Parallel()
	started := make(chan string, 2)
	r := NewRunner(&stubWorker{fn: func(ctx context.Context) error {
		started <- "dns_refresh"
		<-ctx.Done()
		return nil
	}})
	r.Add(&labelled{stubWorker{name: "window_sweep", fn: func(ctx context.Context) error {
		started <- "window_sweep"
		<-ctx.Done()
		return nil
	}}})

	cancel, done := runAsync(r)
	seen := map[string]bool{}
	for range 2 {
		select {
		case name := <-started:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("workers started: %v", seen)
		}
	}
	cancel()
	if err := wait(t, done); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !seen["dns_refresh"] || !seen["window_sweep"] {
		t.Errorf("seen = %v, want both workers", seen)
	}
}

func TestRunner_ErrorCancelsSiblings(t *testing.T) {
	t.Parallel()
	sweepErr := errors.New("sweep failed")
	var stopped atomic.Bool
	r := NewRunner(&stubWorker{fn: func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return nil
	}})
	r.Add(&stubWorker{fn: func(context.Context) error { return sweepErr }})

	if err := r.Run(t.Context()); !errors.Is(err, sweepErr) {
		t.Errorf("err = %v, want %v", err, sweepErr)
	}
	if !stopped.Load() {
		t.Error("sibling worker was not cancelled")
	}
}

func TestWorkerName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		w    Worker
		want string
	}{
		{&labelled{stubWorker{name: "window_sweep"}}, "window_sweep"},
		{NewDNSRefresher(nil, time.Minute), "dns_refresh"},
		{NewWindowSweeper(nil, time.Minute, time.Minute), "window_sweep"},
		{&stubWorker{}, "unknown"},
	}
	for _, tt := range tests {
		if got := workerName(tt.w); got != tt.want {
			t.Errorf("workerName(%T) = %q, want %q", tt.w, got, tt.want)
		}
	}
}
