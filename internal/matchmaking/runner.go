package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage names a step of the matching pass.
type Stage string

// Pipeline stages in execution order.
const (
	StageLock            Stage = "lock"
	StageQueueSnapshot   Stage = "queue_snapshot"
	StageSessionSnapshot Stage = "session_snapshot"
	StageFill            Stage = "fill"
	StageCreate          Stage = "create"
)

// RunResult describes the outcome of one matching pass.
type RunResult struct {
	StartedAt time.Time
	Elapsed   time.Duration
	// Skipped is set when another runner held the lock.
	Skipped bool
	// FailedStage and Err are set when a stage aborted the pass.
	FailedStage Stage
	Err         error
	// QueuedByLevel counts the entries loaded by the queue snapshot.
	QueuedByLevel map[LatencyLevel]int
	// Filled lists players placed into existing sessions.
	Filled []uuid.UUID
	// Created lists players placed into newly created sessions.
	Created []uuid.UUID
}

// OK reports whether the pass ran to completion.
func (r RunResult) OK() bool {
	return r.Err == nil && !r.Skipped
}

// Matched returns the total number of players matched by the pass.
func (r RunResult) Matched() int {
	return len(r.Filled) + len(r.Created)
}

// Queued returns the number of entries loaded by the queue snapshot.
func (r RunResult) Queued() int {
	n := 0
	for _, c := range r.QueuedByLevel {
		n += c
	}
	return n
}

// Locker provides mutual exclusion between runner instances.
type Locker interface {
	// TryLock attempts to take the lock without blocking. When ok is true the
	// caller must invoke release once the pass completes.
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// RunObserver is notified of every pass outcome.
type RunObserver interface {
	ObserveRun(RunResult)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// GameDuration is the active window of newly created sessions.
	GameDuration time.Duration
	// Locker guards the pass against concurrent runners. Nil disables locking.
	Locker Locker
	// Observer receives every RunResult. Nil disables observation.
	Observer RunObserver
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Runner orchestrates one matching pass: snapshot, fill, reconcile, create.
type Runner struct {
	queue    QueueReader
	sessions SessionReader
	filler   *Filler
	creator  *Creator
	locker   Locker
	observer RunObserver
	now      func() time.Time
	logger   *zap.Logger
}

// NewRunner creates a Runner backed by store.
//
// Precondition: store and logger must be non-nil.
// Postcondition: A zero GameDuration is replaced by DefaultGameDuration.
func NewRunner(store TxStore, opts RunnerOptions, logger *zap.Logger) *Runner {
	if opts.GameDuration <= 0 {
		opts.GameDuration = DefaultGameDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		queue:    store,
		sessions: store,
		filler:   NewFiller(store, logger),
		creator:  NewCreator(store, opts.GameDuration, logger),
		locker:   opts.Locker,
		observer: opts.Observer,
		now:      opts.Now,
		logger:   logger,
	}
}

// Run executes one matching pass. It never fails from the caller's point of
// view: stage errors are logged, recorded in the result, and end the pass.
// A panic raised by a store or lock backend is recovered and reported as the
// failure of the stage it interrupted. Everything committed before the failure
// stays committed.
func (r *Runner) Run(ctx context.Context) (res RunResult) {
	start := time.Now()
	res.StartedAt = r.now().UTC()
	stage := StageLock

	defer func() {
		if p := recover(); p != nil {
			res.FailedStage, res.Err = stage, fmt.Errorf("recovered panic: %v", p)
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			r.logger.Error("error while doing the matching operation",
				zap.String("stage", string(res.FailedStage)),
				zap.Error(res.Err),
			)
		}
		if r.observer != nil {
			r.observer.ObserveRun(res)
		}
		r.logger.Info("matchmaking pass completed",
			zap.Bool("ok", res.OK()),
			zap.Bool("skipped", res.Skipped),
			zap.Int("queued", res.Queued()),
			zap.Int("filled", len(res.Filled)),
			zap.Int("created", len(res.Created)),
			zap.Duration("elapsed", res.Elapsed),
		)
	}()

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx)
		if err != nil {
			res.FailedStage, res.Err = StageLock, err
			return res
		}
		if !ok {
			r.logger.Info("matchmaking pass skipped, lock held by another runner")
			res.Skipped = true
			return res
		}
		defer release()
	}

	stage = StageQueueSnapshot
	queue, err := BuildQueueSnapshot(ctx, r.queue)
	if err != nil {
		res.FailedStage, res.Err = StageQueueSnapshot, err
		return res
	}
	res.QueuedByLevel = make(map[LatencyLevel]int, len(queue))
	for level, entries := range queue {
		res.QueuedByLevel[level] = len(entries)
	}

	stage = StageSessionSnapshot
	sessions, err := BuildSessionSnapshot(ctx, r.sessions, res.StartedAt)
	if err != nil {
		res.FailedStage, res.Err = StageSessionSnapshot, err
		return res
	}

	stage = StageFill
	res.Filled, err = r.filler.Fill(ctx, queue, sessions)
	if err != nil {
		res.FailedStage, res.Err = StageFill, err
		return res
	}

	stage = StageCreate
	remainder := Reconcile(queue, res.Filled)

	res.Created, err = r.creator.CreateForRemainder(ctx, remainder)
	if err != nil {
		res.FailedStage, res.Err = StageCreate, err
		return res
	}
	return res
}
