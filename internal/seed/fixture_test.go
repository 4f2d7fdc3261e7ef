package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/seed"
	"github.com/cory-johannsen/matchmaker/internal/storage/memory"
)

const sampleFixture = `
sessions:
  - latency_level: 2
    joined: 8
    duration: 45m
  - latency_level: 4
    joined: 0
queued:
  - player_id: 6f1c1b64-3f0a-4b8e-9d55-2b7d6f0f7a11
    latency_level: 2
  - latency_ms: 120
  - latency_ms: 30
`

func buckets(t *testing.T) matchmaking.LatencyBuckets {
	t.Helper()
	b, err := matchmaking.NewLatencyBuckets(matchmaking.DefaultLatencyThresholds)
	require.NoError(t, err)
	return b
}

func TestLoadAndApply(t *testing.T) {
	f, err := seed.LoadFixtureFromBytes([]byte(sampleFixture))
	require.NoError(t, err)

	store := memory.NewStore()
	res, err := seed.Apply(context.Background(), store, buckets(t), f)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{Sessions: 2, Queued: 3}, res)

	queued, err := store.ListQueued(context.Background())
	require.NoError(t, err)
	require.Len(t, queued, 3)
	levels := map[matchmaking.LatencyLevel]int{}
	for _, e := range queued {
		levels[e.LatencyLevel]++
	}
	assert.Equal(t, map[matchmaking.LatencyLevel]int{2: 1, 3: 1, 1: 1}, levels)

	sessions := store.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, 8, sessions[0].JoinedCount)
	assert.Equal(t, matchmaking.DefaultGameDuration, sessions[1].EndsAt.Sub(sessions[1].StartsAt))
}

func TestLoadFixture_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":           "queued: [",
		"level out of range": "queued:\n  - latency_level: 9\n",
		"no latency":         "queued:\n  - player_id: 6f1c1b64-3f0a-4b8e-9d55-2b7d6f0f7a11\n",
		"both latencies":     "queued:\n  - latency_level: 1\n    latency_ms: 10\n",
		"bad player id":      "queued:\n  - player_id: nope\n    latency_level: 1\n",
		"duplicate player": "queued:\n  - player_id: 6f1c1b64-3f0a-4b8e-9d55-2b7d6f0f7a11\n    latency_level: 1\n" +
			"  - player_id: 6f1c1b64-3f0a-4b8e-9d55-2b7d6f0f7a11\n    latency_level: 2\n",
		"overfull session": "sessions:\n  - latency_level: 1\n    joined: 11\n",
		"bad duration":     "sessions:\n  - latency_level: 1\n    duration: soon\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := seed.LoadFixtureFromBytes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApply_RollsBackOnConflict(t *testing.T) {
	f, err := seed.LoadFixtureFromBytes([]byte(sampleFixture))
	require.NoError(t, err)
	store := memory.NewStore()
	_, err = seed.Apply(context.Background(), store, buckets(t), f)
	require.NoError(t, err)

	_, err = seed.Apply(context.Background(), store, buckets(t), f)
	assert.ErrorIs(t, err, matchmaking.ErrAlreadyQueued)
	assert.Len(t, store.Sessions(), 2, "failed apply must not add sessions")
}
