// Package matchmaking implements the latency-bucketed matching pass that moves
// queued players into game sessions.
package matchmaking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Latency level bounds and session capacity.
const (
	MinLatencyLevel LatencyLevel = 1
	MaxLatencyLevel LatencyLevel = 5

	// SessionCapacity is the maximum number of attending players per session.
	SessionCapacity = 10

	// MinSessionPlayers is the smallest batch the creator will open a session for.
	MinSessionPlayers = 2
)

// LatencyLevel buckets players by network latency. Matching never crosses levels.
type LatencyLevel int

// Valid reports whether l lies within [MinLatencyLevel, MaxLatencyLevel].
func (l LatencyLevel) Valid() bool {
	return l >= MinLatencyLevel && l <= MaxLatencyLevel
}

// QueuedEntry is a player's pending request to be matched.
type QueuedEntry struct {
	ID           uuid.UUID
	PlayerID     uuid.UUID
	LatencyLevel LatencyLevel
	EnqueuedAt   time.Time
}

// Session is a matchmaking group with a bounded active window.
//
// Invariant: 0 <= JoinedCount <= SessionCapacity.
type Session struct {
	ID           uuid.UUID
	LatencyLevel LatencyLevel
	JoinedCount  int
	CreatedAt    time.Time
	StartsAt     time.Time
	EndsAt       time.Time
}

// NewSession builds a session starting at now and lasting duration.
//
// Precondition: level must be valid; joined must be within [0, SessionCapacity];
// duration must be > 0.
// Postcondition: Returns a Session with a fresh ID or an error wrapping ErrInvalidArgument.
func NewSession(level LatencyLevel, joined int, duration time.Duration, now time.Time) (Session, error) {
	if err := ValidateSessionArgs(level, joined, duration); err != nil {
		return Session{}, err
	}
	now = now.UTC()
	return Session{
		ID:           uuid.New(),
		LatencyLevel: level,
		JoinedCount:  joined,
		CreatedAt:    now,
		StartsAt:     now,
		EndsAt:       now.Add(duration),
	}, nil
}

// ValidateLatencyLevel returns an error wrapping ErrInvalidArgument when level is out of range.
func ValidateLatencyLevel(level LatencyLevel) error {
	if !level.Valid() {
		return fmt.Errorf("latency level must be between %d and %d, got %d: %w",
			MinLatencyLevel, MaxLatencyLevel, level, ErrInvalidArgument)
	}
	return nil
}

// ValidateSessionArgs checks the arguments accepted by session creation.
func ValidateSessionArgs(level LatencyLevel, joined int, duration time.Duration) error {
	if err := ValidateLatencyLevel(level); err != nil {
		return err
	}
	if joined < 0 || joined > SessionCapacity {
		return fmt.Errorf("joined count must be between 0 and %d, got %d: %w",
			SessionCapacity, joined, ErrInvalidArgument)
	}
	if duration <= 0 {
		return fmt.Errorf("game duration must be positive, got %s: %w", duration, ErrInvalidArgument)
	}
	return nil
}

// Remaining returns the number of free seats.
func (s Session) Remaining() int {
	return SessionCapacity - s.JoinedCount
}

// HasCapacity reports whether at least one more player fits.
func (s Session) HasCapacity() bool {
	return s.JoinedCount < SessionCapacity
}

// Open reports whether the session still accepts players at now.
func (s Session) Open(now time.Time) bool {
	return s.HasCapacity() && s.EndsAt.After(now)
}

// Join records one more attending player.
//
// Postcondition: JoinedCount is incremented, or ErrSessionFull is returned and
// the session is unchanged.
func (s *Session) Join() error {
	if !s.HasCapacity() {
		return fmt.Errorf("session %s: %w", s.ID, ErrSessionFull)
	}
	s.JoinedCount++
	return nil
}

// Leave records one attending player leaving.
//
// Postcondition: JoinedCount is decremented, or ErrInvalidArgument is returned
// when the session is already empty.
func (s *Session) Leave() error {
	if s.JoinedCount <= 0 {
		return fmt.Errorf("session %s has no attending players: %w", s.ID, ErrInvalidArgument)
	}
	s.JoinedCount--
	return nil
}

// MembershipStatus is the lifecycle state of a player's participation.
type MembershipStatus string

// Membership statuses.
const (
	StatusAttended MembershipStatus = "ATTENDED"
	StatusLeft     MembershipStatus = "LEFT"
)

// Valid reports whether st is a known status.
func (st MembershipStatus) Valid() bool {
	return st == StatusAttended || st == StatusLeft
}

// Membership records a player's participation in a session.
type Membership struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	PlayerID  uuid.UUID
	Status    MembershipStatus
	Score     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMembership returns an ATTENDED membership for playerID in sessionID.
func NewMembership(sessionID, playerID uuid.UUID, now time.Time) Membership {
	now = now.UTC()
	return Membership{
		ID:        uuid.New(),
		SessionID: sessionID,
		PlayerID:  playerID,
		Status:    StatusAttended,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
