package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusiveUntilExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Unix(1_700_000_000, 0))
	l := NewLocalLocker(clk)

	token, ok, err := l.TryLock(ctx, "order:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "order:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A stale token cannot release someone else's lease.
	require.NoError(t, l.Release(ctx, "order:1", "other"))
	_, ok, _ = l.TryLock(ctx, "order:1", time.Minute)
	assert.False(t, ok)

	clk.Advance(time.Minute)
	newToken, ok, err := l.TryLock(ctx, "order:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, token, newToken)

	require.NoError(t, l.Release(ctx, "order:1", newToken))
	_, ok, _ = l.TryLock(ctx, "order:1", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerValidates(t *testing.T) {
	l := NewLocalLocker(nil)
	_, _, err := l.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	var inside atomic.Int32
	var maxInside atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("owner-1")
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}
