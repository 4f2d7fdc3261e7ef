package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

var _ matchmaking.Locker = (*AdvisoryLocker)(nil)

const unlockTimeout = 5 * time.Second

// AdvisoryLocker provides cross-process mutual exclusion through a Postgres
// session-level advisory lock held on a dedicated pooled connection.
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	key    int64
	logger *zap.Logger
}

// NewAdvisoryLocker creates a locker whose advisory lock key is derived from name.
//
// Precondition: pool must be open; name must be non-empty.
func NewAdvisoryLocker(pool *pgxpool.Pool, name string, logger *zap.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, key: AdvisoryKey(name), logger: logger}
}

// AdvisoryKey maps a lock name onto the int64 key space of pg_advisory_lock.
func AdvisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// Ping verifies that a connection for the lock can be obtained.
func (l *AdvisoryLocker) Ping(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging advisory lock database: %w", err)
	}
	return nil
}

// TryLock attempts to take the lock without waiting.
//
// Postcondition: When ok is true the caller must invoke release exactly once.
// When ok is false and err is nil another holder owns the lock.
func (l *AdvisoryLocker) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, matchmaking.PersistenceError("acquiring lock connection", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, matchmaking.PersistenceError("taking advisory lock", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
			l.logger.Error("releasing advisory lock",
				zap.Int64("lock_key", l.key),
				zap.Error(err),
			)
			// Closing the connection drops every session-level lock it holds.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}
	return release, true, nil
}
