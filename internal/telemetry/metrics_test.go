package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/otakushelf/otakushelf/internal/circuitbreaker"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.StoreErrors == nil {
		t.Error("StoreErrors is nil")
	}
	if m.IdentityDuration == nil {
		t.Error("IdentityDuration is nil")
	}

	m.ActiveRequests.Set(1)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("GET", "/watchlist", "200").Inc()
	m.ActiveRequests.Set(5)
	m.RequestDuration.WithLabelValues("GET", "/watchlist").Observe(0.123)
	m.CacheHit()
	m.CacheMiss()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"otakushelf_requests_total",
		"otakushelf_cache_hits_total",
		"otakushelf_cache_misses_total",
		"otakushelf_active_requests",
		"otakushelf_request_duration_seconds",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

func TestObserverMethods(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())

	m.RateLimitReject("auth_login")
	m.RateLimitReject("auth_login")
	m.StoreError("cache", "get")
	m.WindowsSwept(3)
	m.BreakerStateChange("identity", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

	if got := testutil.ToFloat64(m.RateLimitRejects.WithLabelValues("auth_login")); got != 2 {
		t.Errorf("auth_login rejects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StoreErrors.WithLabelValues("cache", "get")); got != 1 {
		t.Errorf("cache get errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WindowsEvicted); got != 3 {
		t.Errorf("windows evicted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("identity")); got != float64(circuitbreaker.StateOpen) {
		t.Errorf("breaker state = %v, want %v", got, float64(circuitbreaker.StateOpen))
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	log.InfoContext(context.Background(), "dropped")
	log.WarnContext(context.Background(), "kept", "key", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" || rec["key"] != "v" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	NewLogger(&buf, "bogus", "text").Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte("msg=hello")) {
		t.Errorf("text output = %q", buf.String())
	}
}

// SetupTracing is not unit-tested because it requires a gRPC connection
// to an OTLP collector, which is integration-test territory.
