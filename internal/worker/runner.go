// internal/worker/runner.go

// Package worker runs user-initiated operations, one goroutine each. The
// worker's contract: it never touches the UI directly, every outcome becomes
// a status-bus event, and a panic takes down the operation, not the process.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/statusbus"
)

// Runner tracks operation goroutines so shutdown can wait for them.
type Runner struct {
	logger *zap.Logger
	bus    *statusbus.Bus
	wg     sync.WaitGroup
}

// NewRunner creates a runner posting to the given bus.
func NewRunner(logger *zap.Logger, bus *statusbus.Bus) *Runner {
	return &Runner{
		logger: logger.Named("worker"),
		bus:    bus,
	}
}

// Go starts fn as an operation goroutine. The operation name shows up in
// every event and log line; a uuid suffix keeps concurrent runs apart.
func (r *Runner) Go(ctx context.Context, operation string, fn func(ctx context.Context) error) {
	opID := fmt.Sprintf("%s-%s", operation, uuid.New().String()[:8])
	log := r.logger.With(zap.String("operation", opID))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Operation panicked",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				r.bus.Post(statusbus.KindStatus, opID,
					fmt.Sprintf("operation crashed: %v", rec), nil)
			}
		}()

		r.bus.Post(statusbus.KindStatus, opID, "started", nil)
		log.Info("Operation started")

		if err := fn(ctx); err != nil {
			log.Error("Operation failed", zap.Error(err))
			r.bus.Post(statusbus.KindStatus, opID, fmt.Sprintf("failed: %v", err), err)
			return
		}

		log.Info("Operation finished")
		r.bus.Post(statusbus.KindStatus, opID, "finished", nil)
	}()
}

// Wait blocks until every operation has returned, or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: shutdown interrupted with operations still running: %w", ctx.Err())
	}
}

// WaitTimeout is Wait with an inline deadline, for callers without a
// shutdown context of their own.
func (r *Runner) WaitTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Wait(ctx)
}
