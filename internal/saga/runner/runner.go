// Package runner executes registration sagas on a bounded worker pool, one
// run per order at a time.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/lock"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	"github.com/smallbiznis/domainpay/internal/saga/domain"
	"github.com/smallbiznis/domainpay/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const lockPrefix = "saga:"

type Runner struct {
	log    *zap.Logger
	saga   domain.Service
	locker lock.Locker
	policy *config.PolicyHolder

	mu      sync.Mutex
	closed  bool
	queued  map[string]struct{}
	queue   chan task
	group   *errgroup.Group
	cancel  context.CancelFunc
	started bool
}

type task struct {
	ctx     context.Context
	orderID string
}

func NewRunner(log *zap.Logger, saga domain.Service, locker lock.Locker, policy *config.PolicyHolder) *Runner {
	size := policy.Get().Saga.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Runner{
		log:    log.Named("saga.runner"),
		saga:   saga,
		locker: locker,
		policy: policy,
		queued: make(map[string]struct{}),
		queue:  make(chan task, size),
	}
}

// Start launches the workers. They stop when Stop is called or ctx ends.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	workers := r.policy.Get().Saga.Workers
	if workers <= 0 {
		workers = 1
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		r.group.Go(func() error {
			r.work(ctx)
			return nil
		})
	}
	r.log.Info("saga runner started", zap.Int("workers", workers), zap.Int("queue_size", cap(r.queue)))
}

// Stop closes the queue and waits for in-flight runs. Runs that do not end
// before ctx are cancelled and left for the recovery sweep.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	group, cancel := r.group, r.cancel
	r.mu.Unlock()

	if group == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Launch queues a saga run without blocking. An order already waiting in
// the queue is not queued twice; a full queue drops the request and leaves
// the order to the recovery sweep.
func (r *Runner) Launch(ctx context.Context, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Warn("saga runner stopped, launch deferred to recovery", zap.String("order_id", orderID))
		return
	}
	if _, ok := r.queued[orderID]; ok {
		return
	}
	select {
	case r.queue <- task{ctx: correlation.Detach(ctx), orderID: orderID}:
		r.queued[orderID] = struct{}{}
		obsmetrics.Saga().SetQueueDepth(len(r.queue))
	default:
		obsmetrics.Saga().IncQueueDropped()
		r.log.Warn("saga queue full, launch deferred to recovery", zap.String("order_id", orderID))
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-r.queue:
			if !ok {
				return
			}
			r.mu.Lock()
			delete(r.queued, t.orderID)
			obsmetrics.Saga().SetQueueDepth(len(r.queue))
			r.mu.Unlock()

			runCtx, cancel := mergeCancel(t.ctx, ctx)
			if _, err := r.RunNow(runCtx, t.orderID); err != nil {
				r.logRunError(t.orderID, err)
			}
			cancel()
		}
	}
}

// RunNow runs the saga for orderID on the calling goroutine while holding
// the per-order lock.
func (r *Runner) RunNow(ctx context.Context, orderID string) (*domain.State, error) {
	key := lockPrefix + orderID
	token, ok, err := r.locker.TryLock(ctx, key, r.policy.Get().Saga.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSagaBusy
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			r.log.Warn("saga lock release failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}()
	return r.saga.Run(ctx, orderID)
}

func (r *Runner) logRunError(orderID string, err error) {
	switch {
	case errors.Is(err, domain.ErrSagaBusy):
		r.log.Debug("saga already running elsewhere", zap.String("order_id", orderID))
	case errors.Is(err, domain.ErrManualReview), errors.Is(err, domain.ErrPersistenceFailure):
		r.log.Warn("saga waiting for manual review", zap.String("order_id", orderID))
	case errors.Is(err, context.Canceled):
		r.log.Info("saga run interrupted", zap.String("order_id", orderID))
	default:
		r.log.Error("saga run failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// mergeCancel keeps the values of base and ends when either context ends.
func mergeCancel(base, stop context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(base)
	unregister := context.AfterFunc(stop, cancel)
	return ctx, func() {
		unregister()
		cancel()
	}
}
