// Package seed loads YAML fixtures of queued players and open sessions.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

// QueuedPlayer describes one queue entry. Exactly one of LatencyLevel and
// LatencyMs must be set. An empty PlayerID is replaced by a random one.
type QueuedPlayer struct {
	PlayerID     string `yaml:"player_id"`
	LatencyLevel int    `yaml:"latency_level"`
	LatencyMs    *int   `yaml:"latency_ms"`
}

// OpenSession describes a pre-existing session.
type OpenSession struct {
	LatencyLevel int    `yaml:"latency_level"`
	Joined       int    `yaml:"joined"`
	Duration     string `yaml:"duration"`
}

// Fixture is the top-level seed document.
type Fixture struct {
	Sessions []OpenSession  `yaml:"sessions"`
	Queued   []QueuedPlayer `yaml:"queued"`
}

// Result counts what Apply wrote.
type Result struct {
	Sessions int
	Queued   int
}

// Validate checks every entry of the fixture.
//
// Postcondition: Returns nil iff every entry can be applied.
func (f *Fixture) Validate() error {
	for i, s := range f.Sessions {
		d, err := s.duration()
		if err != nil {
			return fmt.Errorf("sessions[%d]: %w", i, err)
		}
		if err := matchmaking.ValidateSessionArgs(matchmaking.LatencyLevel(s.LatencyLevel), s.Joined, d); err != nil {
			return fmt.Errorf("sessions[%d]: %w", i, err)
		}
	}
	seen := make(map[string]bool, len(f.Queued))
	for i, q := range f.Queued {
		if q.PlayerID != "" {
			if _, err := uuid.Parse(q.PlayerID); err != nil {
				return fmt.Errorf("queued[%d]: player_id %q is not a uuid: %w", i, q.PlayerID, matchmaking.ErrInvalidArgument)
			}
			if seen[q.PlayerID] {
				return fmt.Errorf("queued[%d]: player_id %q listed twice: %w", i, q.PlayerID, matchmaking.ErrAlreadyQueued)
			}
			seen[q.PlayerID] = true
		}
		if (q.LatencyLevel == 0) == (q.LatencyMs == nil) {
			return fmt.Errorf("queued[%d]: exactly one of latency_level or latency_ms is required: %w", i, matchmaking.ErrInvalidArgument)
		}
		if q.LatencyLevel != 0 {
			if err := matchmaking.ValidateLatencyLevel(matchmaking.LatencyLevel(q.LatencyLevel)); err != nil {
				return fmt.Errorf("queued[%d]: %w", i, err)
			}
		}
	}
	return nil
}

func (s OpenSession) duration() (time.Duration, error) {
	if s.Duration == "" {
		return matchmaking.DefaultGameDuration, nil
	}
	d, err := time.ParseDuration(s.Duration)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %v: %w", s.Duration, err, matchmaking.ErrInvalidArgument)
	}
	return d, nil
}

// LoadFixtureFromBytes parses and validates a fixture from raw YAML.
//
// Postcondition: Returns a validated *Fixture or an error.
func LoadFixtureFromBytes(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFixture reads and validates the fixture at path.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed fixture %s: %w", path, err)
	}
	return LoadFixtureFromBytes(data)
}

// Apply writes the fixture through store in a single transaction. Raw
// latencies are bucketed with buckets.
//
// Precondition: f must have passed Validate.
// Postcondition: Either the whole fixture is written or nothing is.
func Apply(ctx context.Context, store matchmaking.TxStore, buckets matchmaking.LatencyBuckets, f *Fixture) (Result, error) {
	var res Result
	err := store.InTx(ctx, func(tx matchmaking.Store) error {
		res = Result{}
		for i, s := range f.Sessions {
			d, err := s.duration()
			if err != nil {
				return fmt.Errorf("sessions[%d]: %w", i, err)
			}
			if _, err := tx.CreateSession(ctx, matchmaking.LatencyLevel(s.LatencyLevel), s.Joined, d); err != nil {
				return fmt.Errorf("creating sessions[%d]: %w", i, err)
			}
			res.Sessions++
		}
		for i, q := range f.Queued {
			level := matchmaking.LatencyLevel(q.LatencyLevel)
			if q.LatencyMs != nil {
				l, err := buckets.Level(*q.LatencyMs)
				if err != nil {
					return fmt.Errorf("queued[%d]: %w", i, err)
				}
				level = l
			}
			playerID := uuid.New()
			if q.PlayerID != "" {
				playerID = uuid.MustParse(q.PlayerID)
			}
			if _, err := tx.Enqueue(ctx, playerID, level); err != nil {
				return fmt.Errorf("enqueuing queued[%d]: %w", i, err)
			}
			res.Queued++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
