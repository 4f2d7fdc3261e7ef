// Package main loads a YAML fixture of queued players and open sessions
// into the matchmaker database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/matchmaker/internal/config"
	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/seed"
	"github.com/cory-johannsen/matchmaker/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	fixturePath := flag.String("fixture", "", "path to the seed fixture YAML")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: seed -fixture <file> [-config <file>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	fixture, err := seed.LoadFixture(*fixturePath)
	if err != nil {
		log.Fatalf("loading fixture: %v", err)
	}

	buckets, err := matchmaking.NewLatencyBuckets(cfg.Latency.ThresholdsMs)
	if err != nil {
		log.Fatalf("building latency buckets: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	res, err := seed.Apply(ctx, postgres.NewRepository(pool.DB()), buckets, fixture)
	if err != nil {
		log.Fatalf("applying fixture: %v", err)
	}
	fmt.Fprintf(os.Stdout, "seeded %d sessions and %d queued players [%s]\n",
		res.Sessions, res.Queued, time.Since(start))
}
