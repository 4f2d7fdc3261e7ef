package matchmaking

import "github.com/google/uuid"

// Reconcile returns a fresh snapshot without the entries of matched players.
// Levels left empty are dropped. The input snapshot is not modified.
func Reconcile(queue QueueSnapshot, matched []uuid.UUID) QueueSnapshot {
	gone := make(map[uuid.UUID]struct{}, len(matched))
	for _, id := range matched {
		gone[id] = struct{}{}
	}

	out := make(QueueSnapshot, len(queue))
	for level, entries := range queue {
		kept := make([]QueuedEntry, 0, len(entries))
		for _, e := range entries {
			if _, ok := gone[e.PlayerID]; !ok {
				kept = append(kept, e)
			}
		}
		if len(kept) > 0 {
			out[level] = kept
		}
	}
	return out
}
