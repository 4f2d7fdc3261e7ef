package matchmaking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/storage/memory"
)

func snapshots(t *testing.T, s *memory.Store) (matchmaking.QueueSnapshot, matchmaking.SessionSnapshot) {
	t.Helper()
	ctx := context.Background()
	q, err := matchmaking.BuildQueueSnapshot(ctx, s)
	require.NoError(t, err)
	ss, err := matchmaking.BuildSessionSnapshot(ctx, s, baseTime)
	require.NoError(t, err)
	return q, ss
}

func TestFill_SinglePlayerJoinsOpenSession(t *testing.T) {
	s := newStore(t)
	sess := openSession(s, 1, 0, time.Minute)
	entry := queueN(s, 1, 1, 0)[0]
	q, ss := snapshots(t, s)
	ctx := context.Background()

	matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(ctx, q, ss)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{entry.PlayerID}, matched)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.JoinedCount)

	_, err = s.GetQueuedByPlayer(ctx, entry.PlayerID)
	assert.ErrorIs(t, err, matchmaking.ErrQueueEntryNotFound)
	assert.Equal(t, []uuid.UUID{entry.PlayerID}, attending(t, s, sess.ID))

	remainder := matchmaking.Reconcile(q, matched)
	assert.Empty(t, remainder[1])
	assert.NotContains(t, remainder, matchmaking.LatencyLevel(1))
}

func TestFill_FirstFitOldestSessionFirst(t *testing.T) {
	s := newStore(t)
	older := openSession(s, 2, 8, time.Hour)
	newer := openSession(s, 2, 0, time.Minute)
	entries := queueN(s, 2, 4, 0)
	q, ss := snapshots(t, s)

	matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(context.Background(), q, ss)
	require.NoError(t, err)
	assert.Equal(t, playerIDsOf(entries), matched)

	assert.Equal(t, playerIDsOf(entries[:2]), attending(t, s, older.ID))
	assert.Equal(t, playerIDsOf(entries[2:]), attending(t, s, newer.ID))
}

func TestFill_NoCapacityLeavesPlayersQueued(t *testing.T) {
	s := newStore(t)
	sess := openSession(s, 3, 9, time.Hour)
	entries := queueN(s, 3, 3, 0)
	q, ss := snapshots(t, s)
	ctx := context.Background()

	matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(ctx, q, ss)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{entries[0].PlayerID}, matched)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, matchmaking.SessionCapacity, got.JoinedCount)

	for _, e := range entries[1:] {
		_, err := s.GetQueuedByPlayer(ctx, e.PlayerID)
		assert.NoError(t, err)
	}
}

func TestFill_FullSessionsYieldNoMatches(t *testing.T) {
	s := newStore(t)
	queueN(s, 1, 2, 0)
	q, _ := snapshots(t, s)
	full := matchmaking.SessionSnapshot{1: {{ID: uuid.New(), LatencyLevel: 1, JoinedCount: 10, EndsAt: baseTime.Add(time.Hour)}}}

	matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(context.Background(), q, full)
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestFill_LevelWithoutSessionsSkipped(t *testing.T) {
	s := newStore(t)
	openSession(s, 1, 0, time.Hour)
	queueN(s, 2, 3, 0)
	q, ss := snapshots(t, s)

	matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(context.Background(), q, ss)
	require.NoError(t, err)
	assert.Empty(t, matched)
	assert.Equal(t, 3, q.Len())
}

func TestFill_DoesNotMutateSnapshots(t *testing.T) {
	s := newStore(t)
	openSession(s, 1, 0, time.Hour)
	queueN(s, 1, 2, 0)
	q, ss := snapshots(t, s)
	qBefore, ssBefore := q.Clone(), ss.Clone()

	_, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(context.Background(), q, ss)
	require.NoError(t, err)
	assert.Equal(t, qBefore, q)
	assert.Equal(t, ssBefore, ss)
}

func TestFill_FailureKeepsEarlierPlacements(t *testing.T) {
	mem := newStore(t)
	sess := openSession(mem, 1, 0, time.Hour)
	entries := queueN(mem, 1, 3, 0)
	q, ss := snapshots(t, mem)
	store := &failingStore{Store: mem, failFor: entries[1].PlayerID}
	ctx := context.Background()

	matched, err := matchmaking.NewFiller(store, zaptest.NewLogger(t)).Fill(ctx, q, ss)
	require.Error(t, err)
	assert.ErrorIs(t, err, matchmaking.ErrPersistence)
	assert.Equal(t, []uuid.UUID{entries[0].PlayerID}, matched)

	got, err := mem.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.JoinedCount)

	for _, e := range entries[1:] {
		_, err := mem.GetQueuedByPlayer(ctx, e.PlayerID)
		assert.NoError(t, err, "player %s should still be queued", e.PlayerID)
	}
}

func TestFill_SkipsPlayerWhoLeftQueueAfterSnapshot(t *testing.T) {
	s := newStore(t)
	sess := openSession(s, 1, 8, time.Hour)
	entries := queueN(s, 1, 3, 0)
	q, ss := snapshots(t, s)
	ctx := context.Background()
	require.NoError(t, s.Dequeue(ctx, entries[0].PlayerID))

	matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(ctx, q, ss)
	require.NoError(t, err)
	assert.Equal(t, playerIDsOf(entries[1:]), matched)
	assert.Equal(t, playerIDsOf(entries[1:]), attending(t, s, sess.ID))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, matchmaking.SessionCapacity, got.JoinedCount)
}

// Property: a session with c joined players receives at most capacity-c players,
// and every matched player holds exactly one ATTENDED membership.
func TestPropertyFillRespectsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := memory.NewStore()
		s.SetClock(fixedClock)
		nSessions := rapid.IntRange(0, 4).Draw(rt, "sessions")
		initial := make(map[uuid.UUID]int, nSessions)
		for i := 0; i < nSessions; i++ {
			joined := rapid.IntRange(0, matchmaking.SessionCapacity).Draw(rt, "joined")
			sess := openSession(s, 1, joined, time.Duration(i+1)*time.Minute)
			initial[sess.ID] = joined
		}
		queueN(s, 1, rapid.IntRange(0, 45).Draw(rt, "queued"), 0)

		ctx := context.Background()
		q, err := matchmaking.BuildQueueSnapshot(ctx, s)
		if err != nil {
			rt.Fatalf("queue snapshot: %v", err)
		}
		ss, err := matchmaking.BuildSessionSnapshot(ctx, s, baseTime)
		if err != nil {
			rt.Fatalf("session snapshot: %v", err)
		}

		matched, err := matchmaking.NewFiller(s, zaptest.NewLogger(t)).Fill(ctx, q, ss)
		if err != nil {
			rt.Fatalf("Fill: %v", err)
		}

		placed := 0
		for id, joined := range initial {
			members, err := s.ListMembers(ctx, id)
			if err != nil {
				rt.Fatalf("ListMembers: %v", err)
			}
			if len(members) > matchmaking.SessionCapacity-joined {
				rt.Fatalf("session with %d joined received %d players", joined, len(members))
			}
			placed += len(members)
		}
		if placed != len(matched) {
			rt.Fatalf("%d memberships for %d matched players", placed, len(matched))
		}
		remaining, err := s.ListQueued(ctx)
		if err != nil {
			rt.Fatalf("ListQueued: %v", err)
		}
		if len(remaining)+len(matched) != q.Len() {
			rt.Fatalf("queue lost entries: %d remaining + %d matched != %d", len(remaining), len(matched), q.Len())
		}
	})
}
