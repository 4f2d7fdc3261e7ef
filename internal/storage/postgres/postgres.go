// Package postgres provides PostgreSQL persistence for the matchmaker using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/matchmaker/internal/config"
)

// Pool owns the matchmaker's connection pool. Its health check covers both
// reachability and the state of the schema the repository depends on.
type Pool struct {
	pool *pgxpool.Pool
}

// applicationName tags matchmaker connections in pg_stat_activity.
const applicationName = "matchmaker"

// NewPool creates a new PostgreSQL connection pool from the given configuration.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error. The pool is ready
// for queries upon successful return.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// ErrSchemaNotReady is returned while the matchmaking migrations are missing
// or were left dirty by a failed run.
var ErrSchemaNotReady = errors.New("matchmaking schema not ready")

// Health checks within timeout that the database is reachable and that the
// matchmaking schema is migrated and clean.
//
// Precondition: The pool must not be closed.
// Postcondition: Returns nil, a connectivity error, or ErrSchemaNotReady.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	version, dirty, err := SchemaVersion(ctx, p.pool)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("version %d is dirty: %w", version, ErrSchemaNotReady)
	}
	return nil
}

// SchemaVersion reads the version recorded by golang-migrate.
//
// Postcondition: Returns ErrSchemaNotReady when no migration has been applied.
func SchemaVersion(ctx context.Context, db *pgxpool.Pool) (uint, bool, error) {
	var (
		version int64
		dirty   bool
	)
	err := db.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return 0, false, fmt.Errorf("no migrations applied: %w", ErrSchemaNotReady)
		}
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return uint(version), dirty, nil
}

// Close releases all pool resources.
//
// Postcondition: The pool is no longer usable after calling Close.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for use by the repository and locker.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
