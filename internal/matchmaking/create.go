package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGameDuration is the active window of sessions opened by the Creator.
const DefaultGameDuration = 30 * time.Minute

// errBatchWithdrawn rolls back a batch left with too few players after withdrawals.
var errBatchWithdrawn = errors.New("too few players left in batch")

// Creator opens new sessions for players the Filler could not place.
type Creator struct {
	store    TxStore
	duration time.Duration
	logger   *zap.Logger
}

// NewCreator creates a Creator whose sessions last duration.
//
// Precondition: store and logger must be non-nil; duration must be > 0.
func NewCreator(store TxStore, duration time.Duration, logger *zap.Logger) *Creator {
	return &Creator{store: store, duration: duration, logger: logger}
}

// CreateForRemainder batches the remaining players of each level into new sessions.
//
// While a level holds at least MinSessionPlayers entries, the first
// min(remaining, SessionCapacity) of them form a batch that commits atomically:
// the session, every membership, and every queue removal. A single leftover
// player stays queued for the next pass. Players who left the queue after the
// snapshot are dropped from their batch; a batch that falls below
// MinSessionPlayers is rolled back and its players stay queued. The snapshot
// passed in is not modified.
//
// Postcondition: Returns matched player ids in FIFO order per level. On error the
// ids of batches committed earlier are returned alongside it.
func (c *Creator) CreateForRemainder(ctx context.Context, queue QueueSnapshot) ([]uuid.UUID, error) {
	matched := make([]uuid.UUID, 0)

	for _, level := range queue.Levels() {
		remaining := queue[level]
		for len(remaining) >= MinSessionPlayers {
			size := min(len(remaining), SessionCapacity)
			batch := remaining[:size]

			session, placed, err := c.createBatch(ctx, level, batch)
			if errors.Is(err, errBatchWithdrawn) {
				c.logger.Debug("batch abandoned after withdrawals",
					zap.Strings("player_ids", playerIDs(batch)),
					zap.Int("latency_level", int(level)),
				)
				remaining = remaining[size:]
				continue
			}
			if err != nil {
				c.logger.Error("creating session for queued players",
					zap.Strings("player_ids", playerIDs(batch)),
					zap.Int("latency_level", int(level)),
					zap.Error(err),
				)
				return matched, fmt.Errorf("creating session at latency level %d: %w", level, err)
			}
			c.logger.Info("session created",
				zap.String("session_id", session.ID.String()),
				zap.Int("latency_level", int(level)),
				zap.Int("players", len(placed)),
			)

			matched = append(matched, placed...)
			remaining = remaining[size:]
		}
	}
	return matched, nil
}

func (c *Creator) createBatch(ctx context.Context, level LatencyLevel, batch []QueuedEntry) (Session, []uuid.UUID, error) {
	var (
		session Session
		placed  []uuid.UUID
	)
	err := c.store.InTx(ctx, func(s Store) error {
		var err error
		placed = make([]uuid.UUID, 0, len(batch))
		session, err = s.CreateSession(ctx, level, 0, c.duration)
		if err != nil {
			return err
		}
		for _, e := range batch {
			if err := s.ClaimQueued(ctx, e.ID); err != nil {
				if errors.Is(err, ErrQueueEntryNotFound) {
					continue
				}
				return err
			}
			if _, err := s.AddPlayer(ctx, session.ID, e.PlayerID); err != nil {
				return err
			}
			placed = append(placed, e.PlayerID)
		}
		if len(placed) < MinSessionPlayers {
			return errBatchWithdrawn
		}
		return nil
	})
	if err != nil {
		return Session{}, nil, err
	}
	return session, placed, nil
}

func playerIDs(entries []QueuedEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID.String()
	}
	return ids
}
