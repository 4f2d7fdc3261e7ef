package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/config"
	"github.com/cory-johannsen/matchmaker/internal/httpapi"
	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/observability"
	"github.com/cory-johannsen/matchmaker/internal/server"
	"github.com/cory-johannsen/matchmaker/internal/storage/postgres"
	"github.com/cory-johannsen/matchmaker/internal/storage/redislock"
)

const healthTimeout = 2 * time.Second

// App holds the long-running components assembled by InitializeApp.
type App struct {
	Runner    *matchmaking.Runner
	Scheduler *matchmaking.Scheduler
	HTTP      *server.HTTPService
	Health    *server.Health
}

// pinger is implemented by lock backends that can report their reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

func providePool(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Pool, func(), error) {
	start := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pool, pool.Close, nil
}

func provideRepository(pool *postgres.Pool) *postgres.Repository {
	return postgres.NewRepository(pool.DB())
}

func provideLocker(ctx context.Context, cfg config.Config, pool *postgres.Pool, logger *zap.Logger) (matchmaking.Locker, func(), error) {
	switch cfg.Lock.Backend {
	case config.LockPostgres:
		return postgres.NewAdvisoryLocker(pool.DB(), cfg.Lock.Key, logger), func() {}, nil
	case config.LockRedis:
		client, err := redislock.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing redis client", zap.Error(err))
			}
		}
		return redislock.NewLocker(client, cfg.Lock.Key, cfg.Lock.TTL, logger), cleanup, nil
	default:
		return nil, func() {}, nil
	}
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *observability.Metrics {
	return observability.NewMetrics(reg)
}

func provideRunner(store matchmaking.TxStore, cfg config.Config, locker matchmaking.Locker, metrics *observability.Metrics, logger *zap.Logger) *matchmaking.Runner {
	return matchmaking.NewRunner(store, matchmaking.RunnerOptions{
		GameDuration: cfg.Matcher.GameDuration,
		Locker:       locker,
		Observer:     metrics,
	}, logger)
}

func provideScheduler(runner *matchmaking.Runner, cfg config.Config, logger *zap.Logger) *matchmaking.Scheduler {
	return matchmaking.NewScheduler(runner, cfg.Matcher.Interval, logger)
}

func provideBuckets(cfg config.Config) (matchmaking.LatencyBuckets, error) {
	return matchmaking.NewLatencyBuckets(cfg.Latency.ThresholdsMs)
}

func provideHealth(cfg config.Config, pool *postgres.Pool, locker matchmaking.Locker, logger *zap.Logger) *server.Health {
	h := server.NewHealth(healthTimeout, logger)
	h.Register("postgres", func(ctx context.Context) error {
		return pool.Health(ctx, healthTimeout)
	})
	if p, ok := locker.(pinger); ok {
		h.Register("lock:"+cfg.Lock.Backend, p.Ping)
	}
	return h
}

func provideAPI(store matchmaking.TxStore, runner *matchmaking.Runner, buckets matchmaking.LatencyBuckets, health *server.Health, reg *prometheus.Registry, logger *zap.Logger) *httpapi.API {
	return httpapi.NewAPI(store, runner, buckets, httpapi.Options{
		Health:  health.Check,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, logger)
}

func provideHTTPService(cfg config.Config, api *httpapi.API, logger *zap.Logger) *server.HTTPService {
	return server.NewHTTPService(cfg.HTTP, api.Routes(), logger)
}
