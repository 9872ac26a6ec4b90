package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/okian/saltyscope/internal/adapters/http/api"
	"github.com/okian/saltyscope/internal/adapters/http/swagger"
	"github.com/okian/saltyscope/internal/adapters/notify"
	"github.com/okian/saltyscope/internal/adapters/publisher"
	"github.com/okian/saltyscope/internal/adapters/randomness"
	"github.com/okian/saltyscope/internal/adapters/repository"
	"github.com/okian/saltyscope/internal/adapters/saltyboy"
	"github.com/okian/saltyscope/internal/adapters/stream"
	service "github.com/okian/saltyscope/internal/app"
	"github.com/okian/saltyscope/internal/config"
	"github.com/okian/saltyscope/internal/domain/strategy"
	"github.com/okian/saltyscope/internal/domain/wager"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

// application is the started service plus everything that must be closed with it.
type application struct {
	svc     *service.Service
	hub     *stream.Hub
	redis   *redis.Client
	handler http.Handler
}

// build wires configuration into a started service and its HTTP handler.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	policy, err := cfg.Policy.Model()
	if err != nil {
		return nil, err
	}

	app := &application{
		hub: stream.NewHub(ctx,
			stream.WithLogger(log.Named("stream")),
			stream.WithOriginCheck(originChecker(cfg.CORSOrigins))),
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithDefaultPolicy(policy),
		service.WithTimeouts(cfg.Ratings.Timeout(), cfg.Acting.Timeout()),
		service.WithRatingSource(saltyboy.New(cfg.Ratings.BaseURL,
			saltyboy.WithTimeout(cfg.Ratings.Timeout()),
			saltyboy.WithRateLimit(cfg.Ratings.RPS, cfg.Ratings.Burst),
			saltyboy.WithLogger(log.Named("saltyboy")))),
		service.WithRandomness(newRandomness(cfg.Randomness)),
		service.WithDrawTimeout(cfg.Randomness.Timeout()),
		service.WithSink("websocket", app.hub),
	}

	switch cfg.Acting.Mode {
	case config.ActingDryRun:
		opts = append(opts, service.WithActingSurface(wager.DryRun{Log: log.Named("dry-run")}))
	default:
		opts = append(opts, service.WithActingSurface(app.hub))
	}

	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, service.WithSink("redis", publisher.NewStreamPublisher(app.redis, cfg.RedisStream)))
	}
	if cfg.ConsoleStatus {
		opts = append(opts, service.WithSink("console", notify.NewConsole()))
	}
	if cfg.DBPath != "" {
		store, err := repository.NewSQLiteStore(ctx, cfg.DBPath)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, service.WithStore(store))
	}

	app.svc = service.New(opts...)
	if err := app.svc.Start(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	mux := http.NewServeMux()
	api.NewServer(app.svc, app.svc,
		api.WithStream(app.hub),
		api.WithBusy(service.ErrBusy),
	).Register(ctx, mux)
	swagger.Register(ctx, mux)

	app.handler = cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(mux)
	return app, nil
}

func newRandomness(cfg config.RandomnessConfig) strategy.Randomness {
	if cfg.Source == config.RandomnessLocal {
		return randomness.NewLocal(uint64(time.Now().UnixNano()), uint64(os.Getpid()))
	}
	return randomness.NewRandomOrg(cfg.URL, cfg.Timeout())
}

// originChecker applies the CORS allow-list to websocket upgrades.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (a *application) updateMetrics() {
	if a.svc == nil {
		return
	}
	metrics.UpdateQueueSize(a.svc.GetStats().QueueLength)
}

// configureMetrics names the exported series after cfg. It must run before
// build so the metrics endpoint serves the configured registry.
func configureMetrics(cfg config.MetricsConfig) {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.Namespace),
		metrics.WithSubsystem(cfg.Subsystem),
		metrics.WithHistogramBuckets(cfg.LatencyBucketsMS),
	}
	if cfg.Deployment != "" {
		opts = append(opts, metrics.WithConstLabels(map[string]string{"deployment": cfg.Deployment}))
	}
	metrics.Configure(opts...)
}

// Close stops the service and releases connections. The service closes the
// store, also when it never started.
func (a *application) Close() {
	if a.svc != nil {
		a.svc.Stop()
	}
	a.hub.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
