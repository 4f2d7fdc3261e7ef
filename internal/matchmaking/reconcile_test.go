package matchmaking_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

func entry(level matchmaking.LatencyLevel) matchmaking.QueuedEntry {
	return matchmaking.QueuedEntry{ID: uuid.New(), PlayerID: uuid.New(), LatencyLevel: level, EnqueuedAt: baseTime}
}

func TestReconcile_RemovesMatchedPlayers(t *testing.T) {
	p1, p2, p3 := entry(1), entry(1), entry(2)
	q := matchmaking.QueueSnapshot{1: {p1, p2}, 2: {p3}}

	out := matchmaking.Reconcile(q, []uuid.UUID{p1.PlayerID, p3.PlayerID})
	assert.Len(t, out, 1)
	assert.Equal(t, []matchmaking.QueuedEntry{p2}, out[1])

	// Input untouched.
	assert.Len(t, q[1], 2)
	assert.Len(t, q[2], 1)
}

func TestReconcile_KeepsUnmatchedPlayers(t *testing.T) {
	p1, p2, p3 := entry(1), entry(1), entry(2)
	q := matchmaking.QueueSnapshot{1: {p1, p2}, 2: {p3}}

	out := matchmaking.Reconcile(q, []uuid.UUID{uuid.New()})
	assert.Equal(t, q, out)
}

func TestReconcile_EmptyInput(t *testing.T) {
	out := matchmaking.Reconcile(matchmaking.QueueSnapshot{}, []uuid.UUID{uuid.New()})
	assert.Empty(t, out)
	out = matchmaking.Reconcile(nil, nil)
	assert.Empty(t, out)
}

func TestReconcile_DropsEmptyLevels(t *testing.T) {
	q := matchmaking.QueueSnapshot{1: {}, 2: {entry(2)}}
	out := matchmaking.Reconcile(q, nil)
	assert.NotContains(t, out, matchmaking.LatencyLevel(1))
	assert.Len(t, out[2], 1)
}

// Property: reconciling with no matched ids returns the input minus empty levels,
// and reconciling twice with the same ids changes nothing further.
func TestPropertyReconcileIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := matchmaking.QueueSnapshot{}
		all := make([]uuid.UUID, 0)
		for level := matchmaking.MinLatencyLevel; level <= matchmaking.MaxLatencyLevel; level++ {
			n := rapid.IntRange(0, 6).Draw(t, "n")
			entries := make([]matchmaking.QueuedEntry, n)
			for i := range entries {
				entries[i] = entry(level)
				all = append(all, entries[i].PlayerID)
			}
			q[level] = entries
		}

		same := matchmaking.Reconcile(q, nil)
		for level, entries := range q {
			if len(entries) == 0 {
				if _, ok := same[level]; ok {
					t.Fatalf("empty level %d kept", level)
				}
				continue
			}
			if len(same[level]) != len(entries) {
				t.Fatalf("level %d changed size without matches", level)
			}
		}

		var matched []uuid.UUID
		for _, id := range all {
			if rapid.Bool().Draw(t, "matched") {
				matched = append(matched, id)
			}
		}
		once := matchmaking.Reconcile(q, matched)
		twice := matchmaking.Reconcile(once, matched)
		if once.Len() != twice.Len() || once.Len() != q.Len()-len(matched) {
			t.Fatalf("reconcile sizes: input %d, matched %d, once %d, twice %d",
				q.Len(), len(matched), once.Len(), twice.Len())
		}
	})
}
