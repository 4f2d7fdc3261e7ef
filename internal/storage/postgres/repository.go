package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

var _ matchmaking.TxStore = (*Repository)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository persists queue entries, sessions and memberships.
type Repository struct {
	db  querier
	now func() time.Time
}

// NewRepository creates a Repository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock returns a copy of r that stamps rows using now.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	return &Repository{db: r.db, now: now}
}

// timestamp returns the current time at the precision Postgres stores.
func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// InTx runs fn inside a transaction. fn receives a Repository bound to the
// transaction; the transaction commits when fn returns nil and rolls back
// otherwise. Nested calls use savepoints.
//
// Postcondition: Either every write made through fn's Store is committed, or none is.
func (r *Repository) InTx(ctx context.Context, fn func(matchmaking.Store) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		fnErr = fn(&Repository{db: tx, now: r.now})
		return fnErr
	})
	if err == nil || errors.Is(err, fnErr) {
		return err
	}
	return matchmaking.PersistenceError("committing transaction", err)
}

// atomic runs fn against a transaction-bound querier.
func (r *Repository) atomic(ctx context.Context, fn func(q querier) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err == nil || errors.Is(err, fnErr) {
		return err
	}
	return matchmaking.PersistenceError("committing transaction", err)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// lockPlayer serialises queue and membership writes for one player until the
// surrounding transaction ends.
func lockPlayer(ctx context.Context, q querier, playerID uuid.UUID) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, AdvisoryKey("player:"+playerID.String())); err != nil {
		return matchmaking.PersistenceError("locking player", err)
	}
	return nil
}

// isUndefinedTable reports whether err is Postgres' "relation does not exist".
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// scanner abstracts pgx.Row and pgx.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanQueued(row scanner) (matchmaking.QueuedEntry, error) {
	var (
		e     matchmaking.QueuedEntry
		level int
	)
	if err := row.Scan(&e.ID, &e.PlayerID, &level, &e.EnqueuedAt); err != nil {
		return matchmaking.QueuedEntry{}, err
	}
	e.LatencyLevel = matchmaking.LatencyLevel(level)
	e.EnqueuedAt = e.EnqueuedAt.UTC()
	return e, nil
}

func scanSession(row scanner) (matchmaking.Session, error) {
	var (
		s     matchmaking.Session
		level int
	)
	if err := row.Scan(&s.ID, &level, &s.JoinedCount, &s.CreatedAt, &s.StartsAt, &s.EndsAt); err != nil {
		return matchmaking.Session{}, err
	}
	s.LatencyLevel = matchmaking.LatencyLevel(level)
	s.CreatedAt, s.StartsAt, s.EndsAt = s.CreatedAt.UTC(), s.StartsAt.UTC(), s.EndsAt.UTC()
	return s, nil
}

func scanMembership(row scanner) (matchmaking.Membership, error) {
	var (
		m      matchmaking.Membership
		status string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.PlayerID, &status, &m.Score, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return matchmaking.Membership{}, err
	}
	m.Status = matchmaking.MembershipStatus(status)
	m.CreatedAt, m.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return m, nil
}

const (
	queuedColumns     = `id, player_id, latency_level, enqueued_at`
	sessionColumns    = `id, latency_level, joined_count, created_at, starts_at, ends_at`
	membershipColumns = `id, session_id, player_id, status, score, created_at, updated_at`
)

// ListQueued returns every queued entry, oldest first.
func (r *Repository) ListQueued(ctx context.Context) ([]matchmaking.QueuedEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+queuedColumns+` FROM queued_players ORDER BY enqueued_at, seq`)
	if err != nil {
		return nil, matchmaking.PersistenceError("querying queued players", err)
	}
	defer rows.Close()

	var out []matchmaking.QueuedEntry
	for rows.Next() {
		e, err := scanQueued(rows)
		if err != nil {
			return nil, matchmaking.PersistenceError("scanning queued player", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, matchmaking.PersistenceError("iterating queued players", err)
	}
	return out, nil
}

// Enqueue adds playerID to the queue at level.
//
// Precondition: level must be within [MinLatencyLevel, MaxLatencyLevel].
// Postcondition: Returns the new entry, ErrAlreadyQueued if the player is
// already waiting, or ErrInOpenSession if the player attends a session that
// has not ended.
func (r *Repository) Enqueue(ctx context.Context, playerID uuid.UUID, level matchmaking.LatencyLevel) (matchmaking.QueuedEntry, error) {
	if err := matchmaking.ValidateLatencyLevel(level); err != nil {
		return matchmaking.QueuedEntry{}, err
	}
	now := r.timestamp()
	var e matchmaking.QueuedEntry
	err := r.atomic(ctx, func(q querier) error {
		if err := lockPlayer(ctx, q, playerID); err != nil {
			return err
		}
		var sessionID uuid.UUID
		err := q.QueryRow(ctx,
			`SELECT sp.session_id FROM session_players sp
			 JOIN sessions s ON s.id = sp.session_id
			 WHERE sp.player_id = $1 AND sp.status = $2 AND s.ends_at > $3
			 LIMIT 1`,
			playerID, string(matchmaking.StatusAttended), now,
		).Scan(&sessionID)
		switch {
		case err == nil:
			return fmt.Errorf("player %s attends session %s: %w", playerID, sessionID, matchmaking.ErrInOpenSession)
		case !errors.Is(err, pgx.ErrNoRows):
			return matchmaking.PersistenceError("querying open attendance", err)
		}

		e, err = scanQueued(q.QueryRow(ctx,
			`INSERT INTO queued_players (id, player_id, latency_level, enqueued_at)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+queuedColumns,
			uuid.New(), playerID, int(level), now,
		))
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("player %s: %w", playerID, matchmaking.ErrAlreadyQueued)
			}
			return matchmaking.PersistenceError("inserting queued player", err)
		}
		return nil
	})
	if err != nil {
		return matchmaking.QueuedEntry{}, err
	}
	return e, nil
}

// GetQueuedByPlayer returns the queue entry for playerID or ErrQueueEntryNotFound.
func (r *Repository) GetQueuedByPlayer(ctx context.Context, playerID uuid.UUID) (matchmaking.QueuedEntry, error) {
	e, err := scanQueued(r.db.QueryRow(ctx,
		`SELECT `+queuedColumns+` FROM queued_players WHERE player_id = $1`, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return matchmaking.QueuedEntry{}, matchmaking.ErrQueueEntryNotFound
		}
		return matchmaking.QueuedEntry{}, matchmaking.PersistenceError("querying queued player", err)
	}
	return e, nil
}

// DeleteQueued removes the entry with the given id. A missing entry is not an error.
func (r *Repository) DeleteQueued(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM queued_players WHERE id = $1`, id); err != nil {
		return matchmaking.PersistenceError("deleting queued player", err)
	}
	return nil
}

// ClaimQueued removes the entry with the given id or returns
// ErrQueueEntryNotFound when it is already gone.
func (r *Repository) ClaimQueued(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM queued_players WHERE id = $1`, id)
	if err != nil {
		return matchmaking.PersistenceError("claiming queued player", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %s: %w", id, matchmaking.ErrQueueEntryNotFound)
	}
	return nil
}

// Dequeue removes playerID from the queue or returns ErrQueueEntryNotFound.
func (r *Repository) Dequeue(ctx context.Context, playerID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM queued_players WHERE player_id = $1`, playerID)
	if err != nil {
		return matchmaking.PersistenceError("dequeuing player", err)
	}
	if tag.RowsAffected() == 0 {
		return matchmaking.ErrQueueEntryNotFound
	}
	return nil
}

// ListOpenSessions returns sessions with spare capacity that end after now,
// oldest first.
func (r *Repository) ListOpenSessions(ctx context.Context, now time.Time) ([]matchmaking.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE joined_count < $1 AND ends_at > $2
		 ORDER BY created_at, seq`,
		matchmaking.SessionCapacity, now,
	)
	if err != nil {
		return nil, matchmaking.PersistenceError("querying open sessions", err)
	}
	defer rows.Close()

	var out []matchmaking.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, matchmaking.PersistenceError("scanning session", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, matchmaking.PersistenceError("iterating sessions", err)
	}
	return out, nil
}

// CreateSession inserts a session starting now and lasting duration.
//
// Precondition: level in [1,5], joined in [0,10], duration > 0.
// Postcondition: Returns the persisted session or ErrInvalidArgument.
func (r *Repository) CreateSession(ctx context.Context, level matchmaking.LatencyLevel, joined int, duration time.Duration) (matchmaking.Session, error) {
	s, err := matchmaking.NewSession(level, joined, duration, r.timestamp())
	if err != nil {
		return matchmaking.Session{}, err
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO sessions (id, latency_level, joined_count, created_at, starts_at, ends_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+sessionColumns,
		s.ID, int(s.LatencyLevel), s.JoinedCount, s.CreatedAt, s.StartsAt, s.EndsAt,
	)
	created, err := scanSession(row)
	if err != nil {
		return matchmaking.Session{}, matchmaking.PersistenceError("inserting session", err)
	}
	return created, nil
}

// GetSession returns the session with the given id or ErrSessionNotFound.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (matchmaking.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return matchmaking.Session{}, matchmaking.ErrSessionNotFound
		}
		return matchmaking.Session{}, matchmaking.PersistenceError("querying session", err)
	}
	return s, nil
}

// ListMembers returns every membership of the session, attended or left,
// in join order.
func (r *Repository) ListMembers(ctx context.Context, sessionID uuid.UUID) ([]matchmaking.Membership, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+membershipColumns+` FROM session_players
		 WHERE session_id = $1 ORDER BY created_at, seq`, sessionID)
	if err != nil {
		return nil, matchmaking.PersistenceError("querying session players", err)
	}
	defer rows.Close()

	var out []matchmaking.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, matchmaking.PersistenceError("scanning session player", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, matchmaking.PersistenceError("iterating session players", err)
	}
	return out, nil
}

// AddPlayer records playerID as attending the session and increments its
// occupancy in one atomic step.
//
// Postcondition: Returns the new membership, or ErrSessionNotFound,
// ErrSessionFull, ErrAlreadyQueued or ErrAlreadyMember with nothing written.
func (r *Repository) AddPlayer(ctx context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	var m matchmaking.Membership
	err := r.atomic(ctx, func(q querier) error {
		tag, err := q.Exec(ctx,
			`UPDATE sessions SET joined_count = joined_count + 1
			 WHERE id = $1 AND joined_count < $2`,
			sessionID, matchmaking.SessionCapacity,
		)
		if err != nil {
			return matchmaking.PersistenceError("incrementing session occupancy", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := q.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID,
			).Scan(&exists); err != nil {
				return matchmaking.PersistenceError("querying session", err)
			}
			if !exists {
				return matchmaking.ErrSessionNotFound
			}
			return fmt.Errorf("session %s: %w", sessionID, matchmaking.ErrSessionFull)
		}

		if err := lockPlayer(ctx, q, playerID); err != nil {
			return err
		}
		var queued bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM queued_players WHERE player_id = $1)`, playerID,
		).Scan(&queued); err != nil {
			return matchmaking.PersistenceError("querying queued player", err)
		}
		if queued {
			return fmt.Errorf("player %s: %w", playerID, matchmaking.ErrAlreadyQueued)
		}

		nm := matchmaking.NewMembership(sessionID, playerID, r.timestamp())
		m, err = scanMembership(q.QueryRow(ctx,
			`INSERT INTO session_players (id, session_id, player_id, status, score, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+membershipColumns,
			nm.ID, nm.SessionID, nm.PlayerID, string(nm.Status), nm.Score, nm.CreatedAt, nm.UpdatedAt,
		))
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("player %s in session %s: %w", playerID, sessionID, matchmaking.ErrAlreadyMember)
			}
			return matchmaking.PersistenceError("inserting session player", err)
		}
		return nil
	})
	if err != nil {
		return matchmaking.Membership{}, err
	}
	return m, nil
}

// RemovePlayer marks the attending membership as LEFT and decrements the
// session's occupancy.
//
// Postcondition: Returns the updated membership or ErrMembershipNotFound.
func (r *Repository) RemovePlayer(ctx context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	var m matchmaking.Membership
	err := r.atomic(ctx, func(q querier) error {
		var err error
		m, err = scanMembership(q.QueryRow(ctx,
			`UPDATE session_players SET status = $3, updated_at = $4
			 WHERE session_id = $1 AND player_id = $2 AND status = $5
			 RETURNING `+membershipColumns,
			sessionID, playerID, string(matchmaking.StatusLeft), r.timestamp(), string(matchmaking.StatusAttended),
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return matchmaking.ErrMembershipNotFound
			}
			return matchmaking.PersistenceError("updating session player", err)
		}
		if _, err := q.Exec(ctx,
			`UPDATE sessions SET joined_count = joined_count - 1
			 WHERE id = $1 AND joined_count > 0`, sessionID,
		); err != nil {
			return matchmaking.PersistenceError("decrementing session occupancy", err)
		}
		return nil
	})
	if err != nil {
		return matchmaking.Membership{}, err
	}
	return m, nil
}
