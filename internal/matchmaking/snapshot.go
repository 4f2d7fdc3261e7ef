package matchmaking

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"
)

// QueueSnapshot maps a latency level to its queued entries in FIFO order.
type QueueSnapshot map[LatencyLevel][]QueuedEntry

// SessionSnapshot maps a latency level to its open sessions, oldest first.
type SessionSnapshot map[LatencyLevel][]Session

// Levels returns the snapshot's latency levels in ascending order.
func (q QueueSnapshot) Levels() []LatencyLevel {
	return sortedLevels(q)
}

// Len returns the number of entries across all levels.
func (q QueueSnapshot) Len() int {
	n := 0
	for _, entries := range q {
		n += len(entries)
	}
	return n
}

// Clone returns a deep copy whose slices can be modified freely.
func (q QueueSnapshot) Clone() QueueSnapshot {
	out := make(QueueSnapshot, len(q))
	for level, entries := range q {
		out[level] = slices.Clone(entries)
	}
	return out
}

// Levels returns the snapshot's latency levels in ascending order.
func (s SessionSnapshot) Levels() []LatencyLevel {
	return sortedLevels(s)
}

// Clone returns a deep copy whose slices can be modified freely.
func (s SessionSnapshot) Clone() SessionSnapshot {
	out := make(SessionSnapshot, len(s))
	for level, sessions := range s {
		out[level] = slices.Clone(sessions)
	}
	return out
}

func sortedLevels[V any](m map[LatencyLevel]V) []LatencyLevel {
	levels := make([]LatencyLevel, 0, len(m))
	for level := range m {
		levels = append(levels, level)
	}
	slices.Sort(levels)
	return levels
}

// BuildQueueSnapshot loads the whole queue and partitions it by latency level.
//
// Postcondition: Entries within a level are ordered by EnqueuedAt ascending, ties
// keep the store's order. The total entry count equals the number loaded.
func BuildQueueSnapshot(ctx context.Context, r QueueReader) (QueueSnapshot, error) {
	entries, err := r.ListQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading queued entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
	})

	snap := make(QueueSnapshot)
	for _, e := range entries {
		snap[e.LatencyLevel] = append(snap[e.LatencyLevel], e)
	}
	return snap, nil
}

// BuildSessionSnapshot loads open sessions and partitions them by latency level.
//
// Postcondition: Only sessions with free seats and EndsAt after now are kept,
// ordered by CreatedAt ascending within a level.
func BuildSessionSnapshot(ctx context.Context, r SessionReader, now time.Time) (SessionSnapshot, error) {
	sessions, err := r.ListOpenSessions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("loading open sessions: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	snap := make(SessionSnapshot)
	for _, s := range sessions {
		if !s.Open(now) {
			continue
		}
		snap[s.LatencyLevel] = append(snap[s.LatencyLevel], s)
	}
	return snap, nil
}
