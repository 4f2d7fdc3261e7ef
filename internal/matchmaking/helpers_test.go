package matchmaking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/storage/memory"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	s.SetClock(fixedClock)
	return s
}

// queueN puts n entries at level into the store, one second apart after offset.
func queueN(s *memory.Store, level matchmaking.LatencyLevel, n int, offset time.Duration) []matchmaking.QueuedEntry {
	out := make([]matchmaking.QueuedEntry, 0, n)
	for i := 0; i < n; i++ {
		e := matchmaking.QueuedEntry{
			ID:           uuid.New(),
			PlayerID:     uuid.New(),
			LatencyLevel: level,
			EnqueuedAt:   baseTime.Add(-time.Hour + offset + time.Duration(i)*time.Second),
		}
		s.PutQueued(e)
		out = append(out, e)
	}
	return out
}

// openSession puts a session at level with joined players, created age ago.
func openSession(s *memory.Store, level matchmaking.LatencyLevel, joined int, age time.Duration) matchmaking.Session {
	created := baseTime.Add(-age)
	sess := matchmaking.Session{
		ID:           uuid.New(),
		LatencyLevel: level,
		JoinedCount:  joined,
		CreatedAt:    created,
		StartsAt:     created,
		EndsAt:       baseTime.Add(30 * time.Minute),
	}
	s.PutSession(sess)
	return sess
}

func playerIDsOf(entries []matchmaking.QueuedEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}
	return ids
}

func attending(t *testing.T, s matchmaking.Store, sessionID uuid.UUID) []uuid.UUID {
	t.Helper()
	members, err := s.ListMembers(context.Background(), sessionID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if m.Status == matchmaking.StatusAttended {
			ids = append(ids, m.PlayerID)
		}
	}
	return ids
}

var errInjected = errors.New("injected storage failure")

// failingStore fails AddPlayer for one player inside transactions.
type failingStore struct {
	*memory.Store
	failFor uuid.UUID
}

func (f *failingStore) InTx(ctx context.Context, fn func(matchmaking.Store) error) error {
	return f.Store.InTx(ctx, func(s matchmaking.Store) error {
		return fn(&failingView{Store: s, failFor: f.failFor})
	})
}

type failingView struct {
	matchmaking.Store
	failFor uuid.UUID
}

func (f *failingView) AddPlayer(ctx context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	if playerID == f.failFor {
		return matchmaking.Membership{}, matchmaking.PersistenceError("inserting membership", errInjected)
	}
	return f.Store.AddPlayer(ctx, sessionID, playerID)
}
