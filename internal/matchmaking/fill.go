package matchmaking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Filler places queued players into existing open sessions of the same latency level.
type Filler struct {
	store  TxStore
	logger *zap.Logger
}

// NewFiller creates a Filler writing through store.
//
// Precondition: store and logger must be non-nil.
func NewFiller(store TxStore, logger *zap.Logger) *Filler {
	return &Filler{store: store, logger: logger}
}

// Fill assigns queued players to the first open session with a free seat.
//
// Levels are visited in ascending order, players in FIFO order, and sessions
// oldest first. A player whose level has no session with capacity stays queued.
// Each placement claims the queue entry and then commits the membership and the
// occupancy update in the same transaction. A player who left the queue after
// the snapshot was taken is skipped. The snapshots passed in are not modified.
//
// Postcondition: Returns the matched player ids in placement order. On error the
// ids placed before the failing placement are returned alongside it.
func (f *Filler) Fill(ctx context.Context, queue QueueSnapshot, sessions SessionSnapshot) ([]uuid.UUID, error) {
	open := sessions.Clone()
	matched := make([]uuid.UUID, 0)

	for _, level := range queue.Levels() {
		candidates, ok := open[level]
		if !ok {
			continue
		}
		for _, entry := range queue[level] {
			idx := firstWithCapacity(candidates)
			if idx < 0 {
				continue
			}
			if err := f.place(ctx, entry, candidates[idx]); err != nil {
				if errors.Is(err, ErrQueueEntryNotFound) {
					continue
				}
				return matched, err
			}
			if err := candidates[idx].Join(); err != nil {
				return matched, err
			}
			matched = append(matched, entry.PlayerID)
		}
	}
	return matched, nil
}

func (f *Filler) place(ctx context.Context, entry QueuedEntry, session Session) error {
	err := f.store.InTx(ctx, func(s Store) error {
		if err := s.ClaimQueued(ctx, entry.ID); err != nil {
			return err
		}
		_, err := s.AddPlayer(ctx, session.ID, entry.PlayerID)
		return err
	})
	if errors.Is(err, ErrQueueEntryNotFound) {
		f.logger.Debug("queued player withdrew before placement",
			zap.String("player_id", entry.PlayerID.String()),
			zap.Int("latency_level", int(entry.LatencyLevel)),
		)
		return err
	}
	if err != nil {
		f.logger.Error("placing player into session",
			zap.String("player_id", entry.PlayerID.String()),
			zap.String("session_id", session.ID.String()),
			zap.Int("latency_level", int(entry.LatencyLevel)),
			zap.Error(err),
		)
		return fmt.Errorf("placing player %s into session %s: %w", entry.PlayerID, session.ID, err)
	}
	f.logger.Debug("player joined session",
		zap.String("player_id", entry.PlayerID.String()),
		zap.String("session_id", session.ID.String()),
		zap.Int("latency_level", int(entry.LatencyLevel)),
	)
	return nil
}

// firstWithCapacity returns the index of the first session with a free seat, or -1.
func firstWithCapacity(sessions []Session) int {
	for i := range sessions {
		if sessions[i].HasCapacity() {
			return i
		}
	}
	return -1
}
