package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/dnscache"

	"github.com/otakushelf/otakushelf/internal/app"
	"github.com/otakushelf/otakushelf/internal/auth"
	"github.com/otakushelf/otakushelf/internal/cache"
	"github.com/otakushelf/otakushelf/internal/circuitbreaker"
	"github.com/otakushelf/otakushelf/internal/config"
	"github.com/otakushelf/otakushelf/internal/identity"
	"github.com/otakushelf/otakushelf/internal/ratelimit"
	"github.com/otakushelf/otakushelf/internal/server"
	"github.com/otakushelf/otakushelf/internal/sharedstore"
	"github.com/otakushelf/otakushelf/internal/storage/sqlite"
	"github.com/otakushelf/otakushelf/internal/telemetry"
	"github.com/otakushelf/otakushelf/internal/worker"
)

// dnsRefreshInterval is how often cached identity-core DNS entries are refreshed.
const dnsRefreshInterval = 5 * time.Minute

func run(configPath string) error {
	started := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format))

	slog.Info("starting otakushelf",
		"version", version,
		"addr", cfg.Server.Addr,
		"environment", cfg.App.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Telemetry.Tracing.Enabled {
		shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			ServiceName: cfg.App.Name,
			Version:     version,
			Environment: cfg.App.Environment,
			Endpoint:    cfg.Telemetry.Tracing.Endpoint,
			SampleRate:  cfg.Telemetry.Tracing.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				slog.Error("tracing shutdown failed", "error", err)
			}
		}()
	}

	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// The shared store is optional. Cache and limiter each probe it once and
	// fall back to local memory if it does not answer.
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = sharedstore.Open(sharedstore.Options{
			URL:         cfg.Redis.URL,
			DialTimeout: cfg.Redis.DialTimeout,
			OpTimeout:   cfg.Redis.OpTimeout,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	cacheOpts := cache.Options{
		Client:       rdb,
		ProbeTimeout: cfg.Redis.DialTimeout,
		OpTimeout:    cfg.Redis.OpTimeout,
		MaxSize:      cfg.Cache.MaxSize,
		DefaultTTL:   cfg.Cache.DefaultTTL,
		MaxTTL:       cfg.Cache.MaxTTL,
	}
	limiterOpts := ratelimit.Options{
		Client:       rdb,
		ProbeTimeout: cfg.Redis.DialTimeout,
		OpTimeout:    cfg.Redis.OpTimeout,
		Profiles:     ratelimit.MergeProfiles(profileOverrides(cfg.RateLimits)),
	}
	var idObs identity.Observer
	var breakerObs circuitbreaker.Observer
	if metrics != nil {
		cacheOpts.Observer = metrics
		limiterOpts.Observer = metrics
		idObs = metrics
		breakerObs = metrics
	}

	c, err := cache.New(ctx, cacheOpts)
	if err != nil {
		return err
	}
	limiter := ratelimit.New(ctx, limiterOpts)

	resolver := &dnscache.Resolver{}
	idp := identity.New(identity.Options{
		BaseURL:  cfg.Identity.ConnectionURI,
		APIKey:   cfg.Identity.APIKey,
		Timeout:  cfg.Identity.Timeout,
		Resolver: resolver,
		Breaker: circuitbreaker.New("identity", circuitbreaker.Config{
			ErrorThreshold: cfg.Identity.Breaker.ErrorThreshold,
			MinSamples:     cfg.Identity.Breaker.MinSamples,
			Window:         cfg.Identity.Breaker.Window,
			OpenTimeout:    cfg.Identity.Breaker.OpenTimeout,
		}, breakerObs),
		Observer: idObs,
	})
	if err := idp.Ping(ctx); err != nil {
		// Not fatal: the core may come up after us, and the breaker handles outages.
		slog.Warn("identity provider not reachable at startup", "error", err)
	}

	sessions, err := auth.NewSessionAuth(idp, store, cfg.Identity.SessionCacheTTL)
	if err != nil {
		return err
	}

	users := app.NewUserService(store, idp, c, app.UserOptions{
		ProfileTTL: cfg.Cache.ProfileTTL,
		Sessions:   sessions,
	})
	watchlist := app.NewWatchlistService(store, c, cfg.Cache.ListTTL)

	handler := server.New(server.Deps{
		Auth:           sessions,
		Users:          users,
		Watchlist:      watchlist,
		RateLimiter:    limiter,
		Cache:          c,
		ReadyCheck:     store.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		TrustProxy:     cfg.Server.TrustProxy,
		Info: server.Info{
			Name:        cfg.App.Name,
			Environment: cfg.App.Environment,
			Version:     version,
			StartedAt:   started,
		},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	runner := worker.NewRunner(worker.NewDNSRefresher(resolver, dnsRefreshInterval))
	if mem, ok := limiter.Store().(*ratelimit.Memory); ok {
		sweeper := worker.NewWindowSweeper(mem, longestWindow(limiterOpts.Profiles)*2, cfg.RateLimits.SweepInterval)
		if metrics != nil {
			sweeper.WithObserver(metrics)
		}
		runner.Add(sweeper)
	}
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workerErr := make(chan error, 1)
	go func() { workerErr <- runner.Run(workerCtx) }()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("otakushelf ready",
		"addr", cfg.Server.Addr,
		"cache_backend", c.Backend(),
		"ratelimit_backend", limiter.Backend(),
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	case err := <-workerErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	cancelWorkers()

	slog.Info("otakushelf stopped")
	return nil
}

func profileOverrides(cfg config.RateLimitConfig) map[string]ratelimit.Profile {
	out := make(map[string]ratelimit.Profile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		out[name] = ratelimit.Profile{Limit: p.Limit, Window: p.Window}
	}
	return out
}

func longestWindow(profiles map[string]ratelimit.Profile) time.Duration {
	var d time.Duration
	for _, p := range profiles {
		d = max(d, p.Window)
	}
	return d
}
