package matchmaking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueReader loads the queue.
type QueueReader interface {
	// ListQueued returns every queued entry ordered by EnqueuedAt ascending.
	ListQueued(ctx context.Context) ([]QueuedEntry, error)
}

// QueueStore is the persistence contract for queued entries.
type QueueStore interface {
	QueueReader
	// Enqueue adds playerID to the queue. Fails with ErrAlreadyQueued, or with
	// ErrInOpenSession while the player attends a session whose EndsAt is after now.
	Enqueue(ctx context.Context, playerID uuid.UUID, level LatencyLevel) (QueuedEntry, error)
	// GetQueuedByPlayer returns the player's entry or ErrQueueEntryNotFound.
	GetQueuedByPlayer(ctx context.Context, playerID uuid.UUID) (QueuedEntry, error)
	// DeleteQueued removes the entry with id. Removing a missing entry is a no-op.
	DeleteQueued(ctx context.Context, id uuid.UUID) error
	// ClaimQueued removes the entry with id on behalf of the matcher, or returns
	// ErrQueueEntryNotFound when the player withdrew in the meantime.
	ClaimQueued(ctx context.Context, id uuid.UUID) error
	// Dequeue removes the player's entry or returns ErrQueueEntryNotFound.
	Dequeue(ctx context.Context, playerID uuid.UUID) error
}

// SessionReader loads open sessions.
type SessionReader interface {
	// ListOpenSessions returns sessions with free seats whose EndsAt is after now,
	// ordered by CreatedAt ascending.
	ListOpenSessions(ctx context.Context, now time.Time) ([]Session, error)
}

// SessionStore is the persistence contract for sessions and memberships.
type SessionStore interface {
	SessionReader
	// CreateSession persists a new session. Out-of-range arguments yield ErrInvalidArgument.
	CreateSession(ctx context.Context, level LatencyLevel, joined int, duration time.Duration) (Session, error)
	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	// ListMembers returns every membership of the session, ordered by CreatedAt.
	ListMembers(ctx context.Context, sessionID uuid.UUID) ([]Membership, error)
	// AddPlayer creates an ATTENDED membership and increments the session occupancy.
	// Checks run in order: ErrSessionNotFound, ErrSessionFull, then ErrAlreadyQueued
	// for a player still waiting in the queue and ErrAlreadyMember.
	AddPlayer(ctx context.Context, sessionID, playerID uuid.UUID) (Membership, error)
	// RemovePlayer marks the ATTENDED membership LEFT and decrements occupancy.
	// Fails with ErrMembershipNotFound.
	RemovePlayer(ctx context.Context, sessionID, playerID uuid.UUID) (Membership, error)
}

// Store combines the queue and session contracts.
type Store interface {
	QueueStore
	SessionStore
}

// TxStore is a Store that can run a function atomically.
type TxStore interface {
	Store
	// InTx runs fn against a transactional view of the store. Every write made
	// through that view commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}
