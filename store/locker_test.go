package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInProcessLockerSerializesSameKey(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.Acquire(ctx, "same-key")
			require.NoError(t, err)
			defer h.Release()

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxActive)
}

func TestInProcessLockerDistinctKeysRunConcurrently(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	defer h1.Release()

	done := make(chan struct{})
	go func() {
		h2, err := l.Acquire(ctx, "b")
		require.NoError(t, err)
		h2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys should not block each other")
	}
}

func TestInProcessLockerAbortsOnCancelledContext(t *testing.T) {
	l := NewInProcessLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx, "k")
	require.Error(t, err)
}

func TestInProcessLockerEntryCleanedUpAfterRelease(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	h.Release()

	l.mu.Lock()
	_, exists := l.entries["k"]
	l.mu.Unlock()
	require.False(t, exists)
}
