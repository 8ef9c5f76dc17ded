package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Pre-allocated response body and header value slice.
// plainCT avoids the []string{v} alloc from Header.Set (see response.go:jsonCT).
var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

// healthCheckPrefix namespaces the keys written by the detailed health check.
// Every check writes its own key, so concurrent checks never collide.
const healthCheckPrefix = "health_check:"

func healthCheckKey() string { return healthCheckPrefix + uuid.NewString() }

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			w.Header()["Content-Type"] = plainCT
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(notReadyBody)
			return
		}
	}
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

type componentHealth struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

type detailedHealth struct {
	Status      string                     `json:"status"`
	App         string                     `json:"app"`
	Environment string                     `json:"environment"`
	Version     string                     `json:"version"`
	Uptime      float64                    `json:"uptime_seconds"`
	Timestamp   time.Time                  `json:"timestamp"`
	Components  map[string]componentHealth `json:"components"`
}

// handleHealthDetailed checks the database, the cache and the rate limiter.
// Any unhealthy component makes the overall status "degraded" and the
// response 503.
func (s *server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()
	out := detailedHealth{
		Status:      "healthy",
		App:         s.deps.Info.Name,
		Environment: s.deps.Info.Environment,
		Version:     s.deps.Info.Version,
		Timestamp:   now.UTC(),
		Components:  make(map[string]componentHealth, 3),
	}
	if !s.deps.Info.StartedAt.IsZero() {
		out.Uptime = now.Sub(s.deps.Info.StartedAt).Seconds()
	}

	out.Components["database"] = checkComponent(ctx, "", s.deps.ReadyCheck)

	if c := s.deps.Cache; c != nil {
		out.Components["cache"] = checkComponent(ctx, c.Backend(), func(ctx context.Context) error {
			return cacheRoundTrip(ctx, s)
		})
	}
	if l := s.deps.RateLimiter; l != nil {
		out.Components["rate_limiter"] = checkComponent(ctx, l.Backend(), l.Check)
	}

	status := http.StatusOK
	for _, c := range out.Components {
		if c.Status != "healthy" {
			out.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, out)
}

// handleHealthDatabase reports database connectivity only.
func (s *server) handleHealthDatabase(w http.ResponseWriter, r *http.Request) {
	c := checkComponent(r.Context(), "sqlite", s.deps.ReadyCheck)
	status := http.StatusOK
	if c.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, c)
}

func checkComponent(ctx context.Context, backend string, check func(context.Context) error) componentHealth {
	c := componentHealth{Status: "healthy", Backend: backend}
	if check == nil {
		return c
	}
	if err := check(ctx); err != nil {
		c.Status = "unhealthy"
		c.Error = err.Error()
	}
	return c
}

var errCacheRoundTrip = errors.New("cache round trip failed")

// cacheRoundTrip stores, reads back and deletes a throwaway value. The cache
// fails open, so a broken backend shows up as a miss rather than an error.
func cacheRoundTrip(ctx context.Context, s *server) error {
	c := s.deps.Cache
	key := healthCheckKey()
	want := time.Now().UnixNano()
	if !c.Set(ctx, key, want, 10*time.Second) {
		return errCacheRoundTrip
	}
	var got int64
	ok := c.Get(ctx, key, &got)
	c.Delete(ctx, key)
	if !ok || got != want {
		return errCacheRoundTrip
	}
	return nil
}
