// Package detached runs fire-and-forget work. A task is never awaited by the
// code that spawns it; its error is logged and counted, never returned.
package detached

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

// Spawner is the subset of Runner that callers depend on.
type Spawner interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

type Runner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Go starts fn on its own goroutine. fn receives a context that keeps the
// values of ctx (request id, logger) but not its cancellation, bounded by
// the runner timeout.
func (r *Runner) Go(ctx context.Context, name string, fn func(context.Context) error) {
	log := logging.From(ctx).With("task", name)
	base := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		tctx, cancel := context.WithTimeout(base, r.timeout)
		defer cancel()

		if err := run(tctx, fn); err != nil {
			metrics.DetachedTaskFailures.WithLabelValues(name).Inc()
			log.Warnw("detached task failed", zap.Error(err))
			return
		}
		log.Debugw("detached task done")
	}()
}

// Wait blocks until every task started so far has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (r *Runner) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}
