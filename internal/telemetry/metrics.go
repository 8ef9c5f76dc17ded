// Package telemetry provides observability primitives for the OtakuShelf backend.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/otakushelf/otakushelf/internal/circuitbreaker"
)

// Metrics holds all Prometheus collectors for the backend.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RateLimitRejects *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
	IdentityDuration *prometheus.HistogramVec
	WindowsEvicted   prometheus.Counter
	BreakerState     *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otakushelf",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "otakushelf",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "otakushelf",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otakushelf",
			Name:      "cache_hits_total",
			Help:      "Total value cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otakushelf",
			Name:      "cache_misses_total",
			Help:      "Total value cache misses.",
		}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otakushelf",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"profile"}),

		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otakushelf",
			Name:      "store_errors_total",
			Help:      "Backing store failures absorbed by fail-open handling.",
		}, []string{"component", "op"}),

		IdentityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "otakushelf",
			Name:                            "identity_duration_seconds",
			Help:                            "Identity provider call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"op"}),

		WindowsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otakushelf",
			Name:      "ratelimit_windows_evicted_total",
			Help:      "Idle local rate-limit windows evicted by the sweeper.",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "otakushelf",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.RateLimitRejects,
		m.StoreErrors,
		m.IdentityDuration,
		m.WindowsEvicted,
		m.BreakerState,
	)

	return m
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit() { m.CacheHits.Inc() }

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// RateLimitReject implements ratelimit.Observer.
func (m *Metrics) RateLimitReject(profile string) {
	m.RateLimitRejects.WithLabelValues(profile).Inc()
}

// StoreError implements cache.Observer and ratelimit.Observer.
func (m *Metrics) StoreError(component, op string) {
	m.StoreErrors.WithLabelValues(component, op).Inc()
}

// WindowsSwept implements worker.SweepObserver.
func (m *Metrics) WindowsSwept(n int) {
	m.WindowsEvicted.Add(float64(n))
}

// IdentityCall implements identity.Observer.
func (m *Metrics) IdentityCall(op string, d time.Duration) {
	m.IdentityDuration.WithLabelValues(op).Observe(d.Seconds())
}

// BreakerStateChange implements circuitbreaker.Observer.
func (m *Metrics) BreakerStateChange(name string, from, to circuitbreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	level := slog.LevelInfo
	if to == circuitbreaker.StateOpen {
		level = slog.LevelWarn
	}
	slog.LogAttrs(context.Background(), level, "circuit breaker state changed",
		slog.String("name", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}
