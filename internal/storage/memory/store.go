// Package memory provides an in-process implementation of the matchmaking
// store contracts. Transactions are copy-on-write: a failed transaction leaves
// no trace.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

type state struct {
	queue    []matchmaking.QueuedEntry
	sessions []matchmaking.Session
	members  []matchmaking.Membership
}

func (st *state) clone() *state {
	return &state{
		queue:    slices.Clone(st.queue),
		sessions: slices.Clone(st.sessions),
		members:  slices.Clone(st.members),
	}
}

var _ matchmaking.TxStore = (*Store)(nil)

// Store is a mutex-guarded in-memory matchmaking.TxStore.
// All methods are safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// NewStore returns an empty Store using time.Now as its clock.
func NewStore() *Store {
	return &Store{st: &state{}, now: time.Now}
}

// SetClock replaces the store's clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutQueued inserts e as-is, bypassing enqueue checks. Used to load fixtures.
func (s *Store) PutQueued(e matchmaking.QueuedEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.queue = append(s.st.queue, e)
}

// PutSession inserts or replaces sess as-is. Used to load fixtures.
func (s *Store) PutSession(sess matchmaking.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view(s.st)
	if i := v.sessionIndex(sess.ID); i >= 0 {
		s.st.sessions[i] = sess
		return
	}
	s.st.sessions = append(s.st.sessions, sess)
}

// Sessions returns every stored session, full and expired ones included.
func (s *Store) Sessions() []matchmaking.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.sessions)
}

// Memberships returns every stored membership in creation order.
func (s *Store) Memberships() []matchmaking.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.members)
}

// InTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(matchmaking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.st.clone()
	if err := fn(s.view(cp)); err != nil {
		return err
	}
	s.st = cp
	return nil
}

func (s *Store) view(st *state) *view {
	return &view{st: st, now: s.now}
}

// ListQueued implements matchmaking.QueueReader.
func (s *Store) ListQueued(ctx context.Context) ([]matchmaking.QueuedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).ListQueued(ctx)
}

// Enqueue implements matchmaking.QueueStore.
func (s *Store) Enqueue(ctx context.Context, playerID uuid.UUID, level matchmaking.LatencyLevel) (matchmaking.QueuedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).Enqueue(ctx, playerID, level)
}

// GetQueuedByPlayer implements matchmaking.QueueStore.
func (s *Store) GetQueuedByPlayer(ctx context.Context, playerID uuid.UUID) (matchmaking.QueuedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).GetQueuedByPlayer(ctx, playerID)
}

// DeleteQueued implements matchmaking.QueueStore.
func (s *Store) DeleteQueued(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).DeleteQueued(ctx, id)
}

// ClaimQueued implements matchmaking.QueueStore.
func (s *Store) ClaimQueued(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).ClaimQueued(ctx, id)
}

// Dequeue implements matchmaking.QueueStore.
func (s *Store) Dequeue(ctx context.Context, playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).Dequeue(ctx, playerID)
}

// ListOpenSessions implements matchmaking.SessionReader.
func (s *Store) ListOpenSessions(ctx context.Context, now time.Time) ([]matchmaking.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).ListOpenSessions(ctx, now)
}

// CreateSession implements matchmaking.SessionStore.
func (s *Store) CreateSession(ctx context.Context, level matchmaking.LatencyLevel, joined int, duration time.Duration) (matchmaking.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).CreateSession(ctx, level, joined, duration)
}

// GetSession implements matchmaking.SessionStore.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (matchmaking.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).GetSession(ctx, id)
}

// ListMembers implements matchmaking.SessionStore.
func (s *Store) ListMembers(ctx context.Context, sessionID uuid.UUID) ([]matchmaking.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).ListMembers(ctx, sessionID)
}

// AddPlayer implements matchmaking.SessionStore.
func (s *Store) AddPlayer(ctx context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).AddPlayer(ctx, sessionID, playerID)
}

// RemovePlayer implements matchmaking.SessionStore.
func (s *Store) RemovePlayer(ctx context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.st).RemovePlayer(ctx, sessionID, playerID)
}

// view operates on a state without locking; the caller holds the Store mutex.
type view struct {
	st  *state
	now func() time.Time
}

func (v *view) ListQueued(_ context.Context) ([]matchmaking.QueuedEntry, error) {
	out := slices.Clone(v.st.queue)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out, nil
}

func (v *view) Enqueue(_ context.Context, playerID uuid.UUID, level matchmaking.LatencyLevel) (matchmaking.QueuedEntry, error) {
	if err := matchmaking.ValidateLatencyLevel(level); err != nil {
		return matchmaking.QueuedEntry{}, err
	}
	if v.queueIndexByPlayer(playerID) >= 0 {
		return matchmaking.QueuedEntry{}, matchmaking.ErrAlreadyQueued
	}
	if sid, ok := v.openAttendance(playerID); ok {
		return matchmaking.QueuedEntry{}, fmt.Errorf("player %s attends session %s: %w", playerID, sid, matchmaking.ErrInOpenSession)
	}
	e := matchmaking.QueuedEntry{
		ID:           uuid.New(),
		PlayerID:     playerID,
		LatencyLevel: level,
		EnqueuedAt:   v.now().UTC(),
	}
	v.st.queue = append(v.st.queue, e)
	return e, nil
}

func (v *view) GetQueuedByPlayer(_ context.Context, playerID uuid.UUID) (matchmaking.QueuedEntry, error) {
	i := v.queueIndexByPlayer(playerID)
	if i < 0 {
		return matchmaking.QueuedEntry{}, matchmaking.ErrQueueEntryNotFound
	}
	return v.st.queue[i], nil
}

func (v *view) DeleteQueued(_ context.Context, id uuid.UUID) error {
	v.st.queue = slices.DeleteFunc(v.st.queue, func(e matchmaking.QueuedEntry) bool {
		return e.ID == id
	})
	return nil
}

func (v *view) ClaimQueued(_ context.Context, id uuid.UUID) error {
	i := slices.IndexFunc(v.st.queue, func(e matchmaking.QueuedEntry) bool {
		return e.ID == id
	})
	if i < 0 {
		return matchmaking.ErrQueueEntryNotFound
	}
	v.st.queue = slices.Delete(v.st.queue, i, i+1)
	return nil
}

func (v *view) Dequeue(_ context.Context, playerID uuid.UUID) error {
	i := v.queueIndexByPlayer(playerID)
	if i < 0 {
		return matchmaking.ErrQueueEntryNotFound
	}
	v.st.queue = slices.Delete(v.st.queue, i, i+1)
	return nil
}

func (v *view) ListOpenSessions(_ context.Context, now time.Time) ([]matchmaking.Session, error) {
	out := make([]matchmaking.Session, 0)
	for _, sess := range v.st.sessions {
		if sess.Open(now) {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (v *view) CreateSession(_ context.Context, level matchmaking.LatencyLevel, joined int, duration time.Duration) (matchmaking.Session, error) {
	sess, err := matchmaking.NewSession(level, joined, duration, v.now())
	if err != nil {
		return matchmaking.Session{}, err
	}
	v.st.sessions = append(v.st.sessions, sess)
	return sess, nil
}

func (v *view) GetSession(_ context.Context, id uuid.UUID) (matchmaking.Session, error) {
	i := v.sessionIndex(id)
	if i < 0 {
		return matchmaking.Session{}, matchmaking.ErrSessionNotFound
	}
	return v.st.sessions[i], nil
}

func (v *view) ListMembers(_ context.Context, sessionID uuid.UUID) ([]matchmaking.Membership, error) {
	if v.sessionIndex(sessionID) < 0 {
		return nil, matchmaking.ErrSessionNotFound
	}
	out := make([]matchmaking.Membership, 0)
	for _, m := range v.st.members {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (v *view) AddPlayer(_ context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	i := v.sessionIndex(sessionID)
	if i < 0 {
		return matchmaking.Membership{}, matchmaking.ErrSessionNotFound
	}
	if !v.st.sessions[i].HasCapacity() {
		return matchmaking.Membership{}, matchmaking.ErrSessionFull
	}
	if v.queueIndexByPlayer(playerID) >= 0 {
		return matchmaking.Membership{}, matchmaking.ErrAlreadyQueued
	}
	if v.attendingIndex(sessionID, playerID) >= 0 {
		return matchmaking.Membership{}, matchmaking.ErrAlreadyMember
	}
	if err := v.st.sessions[i].Join(); err != nil {
		return matchmaking.Membership{}, err
	}
	m := matchmaking.NewMembership(sessionID, playerID, v.now())
	v.st.members = append(v.st.members, m)
	return m, nil
}

func (v *view) RemovePlayer(_ context.Context, sessionID, playerID uuid.UUID) (matchmaking.Membership, error) {
	mi := v.attendingIndex(sessionID, playerID)
	if mi < 0 {
		return matchmaking.Membership{}, matchmaking.ErrMembershipNotFound
	}
	m := &v.st.members[mi]
	m.Status = matchmaking.StatusLeft
	m.UpdatedAt = v.now().UTC()
	if si := v.sessionIndex(sessionID); si >= 0 && v.st.sessions[si].JoinedCount > 0 {
		_ = v.st.sessions[si].Leave()
	}
	return *m, nil
}

func (v *view) queueIndexByPlayer(playerID uuid.UUID) int {
	return slices.IndexFunc(v.st.queue, func(e matchmaking.QueuedEntry) bool {
		return e.PlayerID == playerID
	})
}

func (v *view) sessionIndex(id uuid.UUID) int {
	return slices.IndexFunc(v.st.sessions, func(s matchmaking.Session) bool {
		return s.ID == id
	})
}

func (v *view) attendingIndex(sessionID, playerID uuid.UUID) int {
	return slices.IndexFunc(v.st.members, func(m matchmaking.Membership) bool {
		return m.SessionID == sessionID && m.PlayerID == playerID && m.Status == matchmaking.StatusAttended
	})
}

// openAttendance reports the session in which the player holds an ATTENDED
// membership that has not ended yet.
func (v *view) openAttendance(playerID uuid.UUID) (uuid.UUID, bool) {
	now := v.now()
	for _, m := range v.st.members {
		if m.PlayerID != playerID || m.Status != matchmaking.StatusAttended {
			continue
		}
		if si := v.sessionIndex(m.SessionID); si >= 0 && v.st.sessions[si].EndsAt.After(now) {
			return m.SessionID, true
		}
	}
	return uuid.Nil, false
}
