package detached

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/internal/metrics"
)

func TestRunner_DoesNotBlockCaller(t *testing.T) {
	r := NewRunner(time.Second)
	release := make(chan struct{})

	start := time.Now()
	r.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-release
		return nil
	})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	r.Wait()
}

func TestRunner_SurvivesParentCancel(t *testing.T) {
	r := NewRunner(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	var sawCancel atomic.Bool
	started := make(chan struct{})
	r.Go(ctx, "outlives-request", func(tctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		if tctx.Err() != nil {
			sawCancel.Store(true)
		}
		return nil
	})

	<-started
	cancel()
	r.Wait()
	assert.False(t, sawCancel.Load())
}

func TestRunner_CountsFailuresAndPanics(t *testing.T) {
	r := NewRunner(time.Second)
	before := testutil.ToFloat64(metrics.DetachedTaskFailures.WithLabelValues("flaky"))

	r.Go(context.Background(), "flaky", func(context.Context) error { return errors.New("boom") })
	r.Go(context.Background(), "flaky", func(context.Context) error { panic("kaboom") })
	r.Wait()

	after := testutil.ToFloat64(metrics.DetachedTaskFailures.WithLabelValues("flaky"))
	assert.Equal(t, before+2, after)
}

func TestRunner_TimeoutBoundsTask(t *testing.T) {
	r := NewRunner(10 * time.Millisecond)

	var err atomic.Value
	r.Go(context.Background(), "hangs", func(ctx context.Context) error {
		<-ctx.Done()
		err.Store(ctx.Err())
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.WaitContext(ctx))
	assert.ErrorIs(t, err.Load().(error), context.DeadlineExceeded)
}
