// Package main provides a CLI tool for removing a player from a session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/matchmaker/internal/config"
	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	sessionArg := flag.String("session", "", "session id (required)")
	playerArg := flag.String("player", "", "player id (required)")
	flag.Parse()

	if *sessionArg == "" || *playerArg == "" {
		flag.Usage()
		os.Exit(1)
	}

	sessionID, err := uuid.Parse(*sessionArg)
	if err != nil {
		log.Fatalf("invalid session id %q: %v", *sessionArg, err)
	}
	playerID, err := uuid.Parse(*playerArg)
	if err != nil {
		log.Fatalf("invalid player id %q: %v", *playerArg, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool.DB())

	m, err := repo.RemovePlayer(ctx, sessionID, playerID)
	if err != nil {
		log.Fatalf("removing player %s from session %s: %v", playerID, sessionID, err)
	}
	sess, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		log.Fatalf("looking up session %s: %v", sessionID, err)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stdout, "player %s left session %s (status %s, %d/%d joined) [%s]\n",
		m.PlayerID, sess.ID, m.Status, sess.JoinedCount, matchmaking.SessionCapacity, elapsed)
}
