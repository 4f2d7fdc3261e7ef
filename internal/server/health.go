package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

// Health aggregates the dependency checks of the matchmaker: the database the
// store writes to and the backend the run lock is taken on.
type Health struct {
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	checks []namedCheck
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

// NewHealth creates an empty Health whose checks each get timeout to answer.
//
// Precondition: timeout must be > 0; logger must be non-nil.
func NewHealth(timeout time.Duration, logger *zap.Logger) *Health {
	return &Health{timeout: timeout, logger: logger}
}

// Register adds a named check. Checks run in parallel.
func (h *Health) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, fn: fn})
}

// Names lists the registered checks in registration order.
func (h *Health) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, len(h.checks))
	for i, c := range h.checks {
		names[i] = c.name
	}
	return names
}

// Check runs every registered check.
//
// Postcondition: Returns nil when all checks pass, otherwise the failures
// joined in registration order, each prefixed with its check name.
func (h *Health) Check(ctx context.Context) error {
	h.mu.Lock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.Unlock()

	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			if err := c.fn(cctx); err != nil {
				h.logger.Warn("dependency check failed",
					zap.String("check", c.name),
					zap.Error(err),
				)
				errs[i] = fmt.Errorf("%s: %w", c.name, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
