package matchmaking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pass runs a single matching pass.
type Pass interface {
	Run(ctx context.Context) RunResult
}

// Scheduler runs a Pass immediately and then once per interval.
// Passes never overlap; Stop waits for an in-flight pass to finish.
type Scheduler struct {
	pass     Pass
	interval time.Duration
	logger   *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a Scheduler for pass.
//
// Precondition: interval must be > 0.
func NewScheduler(pass Pass, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		panic("matchmaking.NewScheduler: interval must be > 0")
	}
	return &Scheduler{
		pass:     pass,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks running passes until Stop is called. A Start that begins
// after Stop returns without running a pass.
func (s *Scheduler) Start() error {
	// started is published before stop is read so that a concurrent Stop
	// either waits for done or is observed here.
	s.started.Store(true)
	defer close(s.done)
	select {
	case <-s.stop:
		return nil
	default:
	}

	s.logger.Info("matchmaking scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Passes are not cancelled by Stop.
	ctx := context.Background()
	for {
		s.pass.Run(ctx)
		select {
		case <-s.stop:
			s.logger.Info("matchmaking scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop signals the loop to exit and, when Start has been called, waits for
// the in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

// Done is closed once Start has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}
