package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/lock"
	"github.com/smallbiznis/domainpay/internal/saga/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSaga struct {
	mu      sync.Mutex
	runs    map[string]int
	block   chan struct{}
	started chan string
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeSaga() *fakeSaga {
	return &fakeSaga{runs: make(map[string]int), started: make(chan string, 16)}
}

func (f *fakeSaga) Run(ctx context.Context, orderID string) (*domain.State, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	f.started <- orderID
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.runs[orderID]++
	f.mu.Unlock()
	return &domain.State{OrderID: orderID, Status: domain.StatusCompleted}, nil
}

func (f *fakeSaga) Get(ctx context.Context, orderID string) (*domain.State, error) {
	return nil, domain.ErrSagaNotFound
}

func (f *fakeSaga) ListManualReview(ctx context.Context, limit int) ([]domain.State, error) {
	return nil, nil
}

func (f *fakeSaga) ClearManualReview(ctx context.Context, orderID string) (*domain.State, error) {
	return nil, domain.ErrNotInManualReview
}

func (f *fakeSaga) count(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[orderID]
}

func policy(workers, queue int) *config.PolicyHolder {
	p := config.DefaultPolicy()
	p.Saga.Workers = workers
	p.Saga.QueueSize = queue
	return config.NewStaticPolicyHolder(p)
}

func TestLaunchRunsQueuedOrders(t *testing.T) {
	saga := newFakeSaga()
	r := NewRunner(zap.NewNop(), saga, lock.NewLocalLocker(nil), policy(2, 8))
	r.Start(context.Background())

	r.Launch(context.Background(), "ord_1")
	r.Launch(context.Background(), "ord_2")
	require.NoError(t, r.Stop(context.Background()))

	assert.Equal(t, 1, saga.count("ord_1"))
	assert.Equal(t, 1, saga.count("ord_2"))
}

func TestRunNowIsExclusivePerOrder(t *testing.T) {
	saga := newFakeSaga()
	saga.block = make(chan struct{})
	locker := lock.NewLocalLocker(nil)
	r := NewRunner(zap.NewNop(), saga, locker, policy(1, 8))

	done := make(chan error, 1)
	go func() {
		_, err := r.RunNow(context.Background(), "ord_1")
		done <- err
	}()
	<-saga.started

	_, err := r.RunNow(context.Background(), "ord_1")
	require.ErrorIs(t, err, domain.ErrSagaBusy)

	close(saga.block)
	require.NoError(t, <-done)

	// The lock is released once the first run returns.
	_, err = r.RunNow(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, 2, saga.count("ord_1"))
}

func TestLaunchDoesNotQueueTwice(t *testing.T) {
	saga := newFakeSaga()
	r := NewRunner(zap.NewNop(), saga, lock.NewLocalLocker(nil), policy(1, 8))

	r.Launch(context.Background(), "ord_1")
	r.Launch(context.Background(), "ord_1")
	assert.Len(t, r.queue, 1)

	r.Start(context.Background())
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, 1, saga.count("ord_1"))
}

func TestLaunchDropsWhenQueueFull(t *testing.T) {
	saga := newFakeSaga()
	r := NewRunner(zap.NewNop(), saga, lock.NewLocalLocker(nil), policy(1, 1))

	r.Launch(context.Background(), "ord_1")
	r.Launch(context.Background(), "ord_2")
	assert.Len(t, r.queue, 1)

	r.Start(context.Background())
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, 1, saga.count("ord_1"))
	assert.Equal(t, 0, saga.count("ord_2"))
}

func TestLaunchAfterStopIsIgnored(t *testing.T) {
	saga := newFakeSaga()
	r := NewRunner(zap.NewNop(), saga, lock.NewLocalLocker(nil), policy(1, 4))
	r.Start(context.Background())
	require.NoError(t, r.Stop(context.Background()))

	assert.NotPanics(t, func() { r.Launch(context.Background(), "ord_1") })
}

func TestStopCancelsRunsPastDeadline(t *testing.T) {
	saga := newFakeSaga()
	saga.block = make(chan struct{})
	r := NewRunner(zap.NewNop(), saga, lock.NewLocalLocker(nil), policy(1, 4))
	r.Start(context.Background())
	r.Launch(context.Background(), "ord_1")
	<-saga.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, saga.count("ord_1"))
}

func TestWorkersBoundConcurrency(t *testing.T) {
	saga := newFakeSaga()
	saga.block = make(chan struct{})
	r := NewRunner(zap.NewNop(), saga, lock.NewLocalLocker(nil), policy(2, 8))
	r.Start(context.Background())
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Launch(context.Background(), id)
	}
	<-saga.started
	<-saga.started
	close(saga.block)
	require.NoError(t, r.Stop(context.Background()))

	assert.LessOrEqual(t, saga.maxSeen.Load(), int32(2))
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, saga.count(id))
	}
}
