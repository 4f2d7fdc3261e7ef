package matchmaking

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when a latency level, occupancy, or duration
// is out of range.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotFound is the base of every lookup miss.
var ErrNotFound = errors.New("not found")

// ErrSessionNotFound is returned when a referenced session does not exist.
var ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

// ErrMembershipNotFound is returned when no ATTENDED membership matches.
var ErrMembershipNotFound = fmt.Errorf("membership %w", ErrNotFound)

// ErrQueueEntryNotFound is returned when a player has no queued entry.
var ErrQueueEntryNotFound = fmt.Errorf("queue entry %w", ErrNotFound)

// ErrSessionFull is returned when a session already holds SessionCapacity players.
var ErrSessionFull = errors.New("session is full")

// ErrAlreadyMember is returned when the player already attends the session.
var ErrAlreadyMember = errors.New("player already attends session")

// ErrAlreadyQueued is returned when the player already has a queued entry.
var ErrAlreadyQueued = errors.New("player already queued")

// ErrInOpenSession is returned when a player asks to queue while attending a
// session that has not ended.
var ErrInOpenSession = errors.New("player attends an open session")

// ErrPersistence marks failures of the underlying storage.
var ErrPersistence = errors.New("persistence failure")

// PersistenceError wraps a storage failure so that it matches both
// ErrPersistence and the underlying cause.
func PersistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
