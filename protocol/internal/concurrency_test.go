package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConcurrentUnboundedRunsAllValues(t *testing.T) {
	var count atomic.Int32
	var wg sync.WaitGroup

	dispatch, cleanup := Concurrent(0, func(context.Context, int) {
		defer wg.Done()
		count.Add(1)
	})
	defer cleanup()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		dispatch(context.Background(), i)
	}
	wg.Wait()

	require.Equal(t, int32(20), count.Load())
}

func TestConcurrentBoundedLimitsParallelism(t *testing.T) {
	var active atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	dispatch, cleanup := Concurrent(2, func(context.Context, int) {
		defer wg.Done()
		n := active.Add(1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	})
	defer cleanup()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		dispatch(context.Background(), i)
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestConcurrentBoundedStopsOnContextCancel(t *testing.T) {
	dispatch, cleanup := Concurrent(1, func(context.Context, int) {
		time.Sleep(50 * time.Millisecond)
	})
	defer cleanup()

	// Saturate the single worker, then try to dispatch with an
	// already-cancelled context: it must return rather than block forever.
	dispatch(context.Background(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		dispatch(ctx, 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not respect context cancellation")
	}
}
