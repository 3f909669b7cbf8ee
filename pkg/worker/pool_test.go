package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	pool.Dispatch(Job{
		Key: "slow",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestPool_SameKeyRunsInOrder(t *testing.T) {
	pool := NewPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var mu sync.Mutex
	var results []int
	for i := 1; i <= 5; i++ {
		val := i
		pool.Dispatch(Job{
			Key: "https://example.com/hook",
			Handler: func(ctx context.Context) error {
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		})
	}
	pool.Stop()

	require.Equal(t, []int{1, 2, 3, 4, 5}, results)
}

func TestPool_TryDispatchReportsSaturation(t *testing.T) {
	pool := NewPool(1, 1)
	// Not started: the single queue fills and then overflows.
	ok := pool.TryDispatch(Job{Key: "k", Handler: func(ctx context.Context) error { return nil }})
	assert.True(t, ok)
	ok = pool.TryDispatch(Job{Key: "k", Handler: func(ctx context.Context) error { return nil }})
	assert.False(t, ok)

	stats := pool.GetStats()
	assert.Equal(t, int64(2), stats.TotalDispatched)
	assert.Equal(t, int64(1), stats.TotalDropped)
}

func TestPool_StopDrainsQueuedJobs(t *testing.T) {
	pool := NewPool(2, 50)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var processed int64
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		pool.Dispatch(Job{
			Key: "k",
			Handler: func(ctx context.Context) error {
				mu.Lock()
				processed++
				mu.Unlock()
				return nil
			},
		})
	}
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(20), processed)
}

func TestPool_PanickingJobDoesNotKillWorker(t *testing.T) {
	pool := NewPool(1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	done := make(chan struct{})
	pool.Dispatch(Job{Key: "k", Handler: func(ctx context.Context) error { panic("boom") }})
	pool.Dispatch(Job{Key: "k", Handler: func(ctx context.Context) error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	pool.Stop()

	assert.GreaterOrEqual(t, pool.GetStats().TotalErrors, int64(1))
}

func TestPool_DispatchAfterStopIsDropped(t *testing.T) {
	pool := NewPool(1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	pool.Stop()

	ok := pool.TryDispatch(Job{Key: "k", Handler: func(ctx context.Context) error { return nil }})
	assert.False(t, ok)
}
