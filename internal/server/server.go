// Package server implements the HTTP transport layer for the OtakuShelf backend.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/app"
	"github.com/otakushelf/otakushelf/internal/cache"
	"github.com/otakushelf/otakushelf/internal/ratelimit"
	"github.com/otakushelf/otakushelf/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Info describes the running deployment for health output.
type Info struct {
	Name        string
	Environment string
	Version     string
	StartedAt   time.Time
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth           shelf.Authenticator
	Users          *app.UserService
	Watchlist      *app.WatchlistService
	RateLimiter    *ratelimit.Limiter // nil = no rate limiting
	Cache          *cache.Cache       // nil = cache check skipped in detailed health
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	TrustProxy     bool               // take client IP from X-Forwarded-For
	Info           Info
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth, no rate limit)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Get("/health/database", s.handleHealthDatabase)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/users", func(r chi.Router) {
		// Anonymous endpoints, limited per client IP.
		r.With(s.rateLimit(ratelimit.ProfileRegister)).Post("/signup", s.handleSignup)
		r.With(s.rateLimit(ratelimit.ProfileLogin)).Post("/signin", s.handleSignin)
		r.With(s.rateLimit(ratelimit.ProfileAPIGeneral)).Get("/check-username/{username}", s.handleCheckUsername)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.rateLimit(ratelimit.ProfileAPIGeneral))
			r.Get("/me", s.handleGetMe)
			r.Put("/me", s.handleUpdateMe)
			r.Delete("/me", s.handleDeleteMe)
		})
	})

	r.Route("/watchlist", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit(ratelimit.ProfileWatchlist))
		r.Post("/", s.handleAddItem)
		r.Get("/", s.handleListWatchlist)
		r.Get("/stats", s.handleWatchlistStats)
		r.Post("/bulk", s.handleBulkUpdate)
		r.Get("/anime/{animeID}", s.handleGetByAnime)
		r.Get("/{id}", s.handleGetItem)
		r.Put("/{id}", s.handleUpdateItem)
		r.Delete("/{id}", s.handleDeleteItem)
	})

	return r
}

type server struct {
	deps Deps
}
