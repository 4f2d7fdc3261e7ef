package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

type enqueueRequest struct {
	PlayerID     uuid.UUID `json:"player_id"`
	LatencyLevel *int      `json:"latency_level,omitempty"`
	LatencyMs    *int      `json:"latency_ms,omitempty"`
}

type queuedEntryResponse struct {
	ID           uuid.UUID `json:"id"`
	PlayerID     uuid.UUID `json:"player_id"`
	LatencyLevel int       `json:"latency_level"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

type sessionResponse struct {
	ID           uuid.UUID `json:"id"`
	LatencyLevel int       `json:"latency_level"`
	JoinedCount  int       `json:"joined_count"`
	Remaining    int       `json:"remaining"`
	CreatedAt    time.Time `json:"created_at"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

type membershipResponse struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	PlayerID  uuid.UUID `json:"player_id"`
	Status    string    `json:"status"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type joinRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
}

type runResponse struct {
	StartedAt     time.Time      `json:"started_at"`
	ElapsedMs     int64          `json:"elapsed_ms"`
	Skipped       bool           `json:"skipped"`
	FailedStage   string         `json:"failed_stage,omitempty"`
	Error         string         `json:"error,omitempty"`
	QueuedByLevel map[string]int `json:"queued_by_level"`
	Filled        []uuid.UUID    `json:"filled"`
	Created       []uuid.UUID    `json:"created"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toQueuedEntry(e matchmaking.QueuedEntry) queuedEntryResponse {
	return queuedEntryResponse{
		ID:           e.ID,
		PlayerID:     e.PlayerID,
		LatencyLevel: int(e.LatencyLevel),
		EnqueuedAt:   e.EnqueuedAt,
	}
}

func toSession(s matchmaking.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		LatencyLevel: int(s.LatencyLevel),
		JoinedCount:  s.JoinedCount,
		Remaining:    s.Remaining(),
		CreatedAt:    s.CreatedAt,
		StartsAt:     s.StartsAt,
		EndsAt:       s.EndsAt,
	}
}

func toMembership(m matchmaking.Membership) membershipResponse {
	return membershipResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		PlayerID:  m.PlayerID,
		Status:    string(m.Status),
		Score:     m.Score,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toRun(res matchmaking.RunResult) runResponse {
	out := runResponse{
		StartedAt:     res.StartedAt,
		ElapsedMs:     res.Elapsed.Milliseconds(),
		Skipped:       res.Skipped,
		FailedStage:   string(res.FailedStage),
		QueuedByLevel: make(map[string]int, len(res.QueuedByLevel)),
		Filled:        nonNil(res.Filled),
		Created:       nonNil(res.Created),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	for level, n := range res.QueuedByLevel {
		out.QueuedByLevel[fmt.Sprint(int(level))] = n
	}
	return out
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

// Enqueue handles POST /queue. The body names either a latency level or a
// raw latency in milliseconds, which is bucketed into a level.
func (a *API) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, fmt.Errorf("decoding request: %v: %w", err, matchmaking.ErrInvalidArgument))
		return
	}
	if req.PlayerID == uuid.Nil {
		a.writeError(w, fmt.Errorf("player_id is required: %w", matchmaking.ErrInvalidArgument))
		return
	}

	var level matchmaking.LatencyLevel
	switch {
	case req.LatencyLevel != nil && req.LatencyMs != nil:
		a.writeError(w, fmt.Errorf("latency_level and latency_ms are mutually exclusive: %w", matchmaking.ErrInvalidArgument))
		return
	case req.LatencyLevel != nil:
		level = matchmaking.LatencyLevel(*req.LatencyLevel)
	case req.LatencyMs != nil:
		l, err := a.buckets.Level(*req.LatencyMs)
		if err != nil {
			a.writeError(w, err)
			return
		}
		level = l
	default:
		a.writeError(w, fmt.Errorf("one of latency_level or latency_ms is required: %w", matchmaking.ErrInvalidArgument))
		return
	}

	e, err := a.store.Enqueue(r.Context(), req.PlayerID, level)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQueuedEntry(e))
}

// GetQueued handles GET /queue/{playerID}.
func (a *API) GetQueued(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuidParam(r, "playerID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	e, err := a.store.GetQueuedByPlayer(r.Context(), playerID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueuedEntry(e))
}

// Dequeue handles DELETE /queue/{playerID}.
func (a *API) Dequeue(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuidParam(r, "playerID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.store.Dequeue(r.Context(), playerID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /sessions/{sessionID}.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	s, err := a.store.GetSession(r.Context(), sessionID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(s))
}

// ListMembers handles GET /sessions/{sessionID}/players.
func (a *API) ListMembers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	members, err := a.store.ListMembers(r.Context(), sessionID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]membershipResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMembership(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// AddPlayer handles POST /sessions/{sessionID}/players. A player still waiting
// in the queue is refused with 409; only a matching pass moves them out.
func (a *API) AddPlayer(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, fmt.Errorf("decoding request: %v: %w", err, matchmaking.ErrInvalidArgument))
		return
	}
	if req.PlayerID == uuid.Nil {
		a.writeError(w, fmt.Errorf("player_id is required: %w", matchmaking.ErrInvalidArgument))
		return
	}
	m, err := a.store.AddPlayer(r.Context(), sessionID, req.PlayerID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembership(m))
}

// RemovePlayer handles DELETE /sessions/{sessionID}/players/{playerID}.
func (a *API) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	playerID, err := uuidParam(r, "playerID")
	if err != nil {
		a.writeError(w, err)
		return
	}
	m, err := a.store.RemovePlayer(r.Context(), sessionID, playerID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembership(m))
}

// RunMatch handles POST /match/run by executing one pass synchronously.
// A skipped pass answers 409 and a failed pass 500; both carry the result body.
func (a *API) RunMatch(w http.ResponseWriter, r *http.Request) {
	res := a.pass.Run(r.Context())
	status := http.StatusOK
	switch {
	case res.Skipped:
		status = http.StatusConflict
	case res.Err != nil:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toRun(res))
}

// Healthz handles GET /healthz.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", name, raw, matchmaking.ErrInvalidArgument)
	}
	return id, nil
}

// statusFor maps matchmaking sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, matchmaking.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, matchmaking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, matchmaking.ErrAlreadyQueued),
		errors.Is(err, matchmaking.ErrAlreadyMember),
		errors.Is(err, matchmaking.ErrInOpenSession),
		errors.Is(err, matchmaking.ErrSessionFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
