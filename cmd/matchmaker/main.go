// Package main runs the matchmaker: a periodic matching pass plus the HTTP
// API for queue and session management.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/config"
	"github.com/cory-johannsen/matchmaker/internal/observability"
	"github.com/cory-johannsen/matchmaker/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	once := flag.Bool("once", false, "run a single matching pass and exit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "matchmaker")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}

	code := run(context.Background(), cfg, logger, *once)
	_ = logger.Sync()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, once bool) int {
	app, cleanup, err := InitializeApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("initializing matchmaker", zap.Error(err))
		return 1
	}
	defer cleanup()

	if once {
		if err := app.Health.Check(ctx); err != nil {
			logger.Error("dependencies unavailable", zap.Error(err))
			return 1
		}
		res := app.Runner.Run(ctx)
		if res.Err != nil {
			return 1
		}
		return 0
	}

	logger.Info("starting matchmaker",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Duration("interval", cfg.Matcher.Interval),
		zap.String("lock_backend", cfg.Lock.Backend),
	)

	lc := server.NewLifecycle(logger)
	lc.RequireHealthy(app.Health)
	lc.Add("scheduler", app.Scheduler)
	lc.Add("http", app.HTTP)
	if err := lc.Run(ctx); err != nil {
		logger.Error("matchmaker stopped with error", zap.Error(err))
		return 1
	}
	return 0
}
