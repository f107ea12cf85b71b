package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestImmediateAcquire(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	require.False(t, g.Busy())
	require.NoError(t, g.Acquire(ctx))
	require.True(t, g.Busy())
	require.Equal(t, 0, g.Len())

	g.Release()
	require.False(t, g.Busy())
}

func TestSingleHolderFifo(t *testing.T) {
	const n = 32

	g := NewGate()
	ctx := context.Background()

	var holders atomic.Int32
	var order []int
	orderLock := sync.Mutex{}

	// the first acquire is taken synchronously so the rest queue up
	require.NoError(t, g.Acquire(ctx))

	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			err := g.Acquire(ctx)
			require.NoError(t, err)

			require.Equal(t, int32(1), holders.Add(1))
			orderLock.Lock()
			order = append(order, i)
			orderLock.Unlock()
			time.Sleep(time.Millisecond)
			holders.Add(-1)

			g.Release()
		}(i)

		// give each goroutine time to join the queue so that the
		// arrival order is deterministic
		for g.Len() < i+1 {
			time.Sleep(100 * time.Microsecond)
		}
	}

	g.Release()
	wg.Wait()

	require.False(t, g.Busy())
	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v, "waiters must be served in arrival order")
	}
}

func TestCancelledWaiterIsRemoved(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))

	cancelCtx, cancel := context.WithCancel(ctx)
	errs := make(chan error, 1)
	go func() {
		errs <- g.Acquire(cancelCtx)
	}()
	for g.Len() < 1 {
		time.Sleep(100 * time.Microsecond)
	}

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
	require.Equal(t, 0, g.Len())

	// the holder releasing afterwards must leave the gate idle,
	// not signal the withdrawn waiter
	g.Release()
	require.False(t, g.Busy())
}

func TestHandoffKeepsGateBusy(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		if err := g.Acquire(ctx); err == nil {
			close(acquired)
		}
	}()
	for g.Len() < 1 {
		time.Sleep(100 * time.Microsecond)
	}

	g.Release()
	<-acquired
	// ownership moved directly, no idle window
	require.True(t, g.Busy())
	g.Release()
	require.False(t, g.Busy())
}
