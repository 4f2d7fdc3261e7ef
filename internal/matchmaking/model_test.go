package matchmaking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

func TestNewSession(t *testing.T) {
	sess, err := matchmaking.NewSession(3, 0, 30*time.Minute, baseTime)
	require.NoError(t, err)
	assert.Equal(t, matchmaking.LatencyLevel(3), sess.LatencyLevel)
	assert.Equal(t, 0, sess.JoinedCount)
	assert.Equal(t, baseTime, sess.CreatedAt)
	assert.Equal(t, baseTime, sess.StartsAt)
	assert.Equal(t, baseTime.Add(30*time.Minute), sess.EndsAt)
}

func TestNewSession_InvalidArguments(t *testing.T) {
	cases := []struct {
		name     string
		level    matchmaking.LatencyLevel
		joined   int
		duration time.Duration
	}{
		{"level zero", 0, 0, time.Minute},
		{"level six", 6, 0, time.Minute},
		{"negative joined", 1, -1, time.Minute},
		{"joined over capacity", 1, 11, time.Minute},
		{"zero duration", 1, 0, 0},
		{"negative duration", 1, 0, -time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := matchmaking.NewSession(tc.level, tc.joined, tc.duration, baseTime)
			assert.ErrorIs(t, err, matchmaking.ErrInvalidArgument)
		})
	}
}

func TestSession_JoinRejectsFull(t *testing.T) {
	sess := matchmaking.Session{JoinedCount: matchmaking.SessionCapacity}
	err := sess.Join()
	assert.ErrorIs(t, err, matchmaking.ErrSessionFull)
	assert.Equal(t, matchmaking.SessionCapacity, sess.JoinedCount)
}

func TestSession_LeaveRejectsEmpty(t *testing.T) {
	sess := matchmaking.Session{}
	err := sess.Leave()
	assert.ErrorIs(t, err, matchmaking.ErrInvalidArgument)
	assert.Equal(t, 0, sess.JoinedCount)
}

func TestSession_Open(t *testing.T) {
	sess := matchmaking.Session{JoinedCount: 9, EndsAt: baseTime.Add(time.Second)}
	assert.True(t, sess.Open(baseTime))
	assert.False(t, sess.Open(baseTime.Add(time.Second)))
	sess.JoinedCount = 10
	assert.False(t, sess.Open(baseTime))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, matchmaking.ErrSessionNotFound, matchmaking.ErrNotFound)
	assert.ErrorIs(t, matchmaking.ErrMembershipNotFound, matchmaking.ErrNotFound)
	assert.ErrorIs(t, matchmaking.ErrQueueEntryNotFound, matchmaking.ErrNotFound)
	assert.NotErrorIs(t, matchmaking.ErrSessionFull, matchmaking.ErrNotFound)

	err := matchmaking.PersistenceError("inserting session", errInjected)
	assert.ErrorIs(t, err, matchmaking.ErrPersistence)
	assert.ErrorIs(t, err, errInjected)
}

// Property: any sequence of Join/Leave keeps JoinedCount within [0, capacity].
func TestPropertyJoinedCountStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sess := matchmaking.Session{JoinedCount: rapid.IntRange(0, matchmaking.SessionCapacity).Draw(t, "initial")}
		ops := rapid.SliceOf(rapid.Bool()).Draw(t, "ops")
		for _, join := range ops {
			if join {
				_ = sess.Join()
			} else {
				_ = sess.Leave()
			}
			if sess.JoinedCount < 0 || sess.JoinedCount > matchmaking.SessionCapacity {
				t.Fatalf("joined count out of range: %d", sess.JoinedCount)
			}
		}
	})
}
