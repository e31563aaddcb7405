package scheduler

import (
	"context"
	"errors"
	"time"

	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	"github.com/smallbiznis/domainpay/internal/scheduler/guard"
	"go.uber.org/zap"
)

// RecoverySweepJob re-drives orders a crash or a lost launch left behind:
// reconciled orders whose funding never committed, funded orders whose saga
// never started or stopped heartbeating, and failed sagas whose refund did
// not commit. Sagas parked for manual review are left alone.
func (s *Scheduler) RecoverySweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecovery, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	cutoff := s.clock.Now().Add(-s.policy.Get().Saga.StaleAfter)

	funded, err := s.recoverFunding(ctx, run, cutoff)
	if err != nil {
		return err
	}
	launched := make(map[string]struct{})
	resumed, err := s.resumeSagas(ctx, run, cutoff, launched)
	if err != nil {
		return err
	}
	compensated, err := s.resumeCompensations(ctx, run, cutoff, launched)
	if err != nil {
		return err
	}

	run.Processed("funding", funded)
	run.Processed("saga", resumed)
	run.Processed("compensation", compensated)
	return nil
}

func (s *Scheduler) recoverFunding(ctx context.Context, run *jobRun, cutoff time.Time) (int, error) {
	orders, err := s.orderRepo.ListByStatus(ctx, s.db, []orderdomain.OrderStatus{orderdomain.StatusReconciled}, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if guard.EnsureNeedsFunding(order, cutoff) != nil {
			run.Skip()
			continue
		}
		if _, err := s.payments.ApplyFunding(ctx, order.ID); err != nil {
			s.logItemError(ctx, run, "scheduler.recovery.funding_failed", order.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Scheduler) resumeSagas(ctx context.Context, run *jobRun, cutoff time.Time, launched map[string]struct{}) (int, error) {
	statuses := []orderdomain.OrderStatus{orderdomain.StatusFunded, orderdomain.StatusSagaRunning}
	orders, err := s.orderRepo.ListByStatus(ctx, s.db, statuses, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if order.Kind != orderdomain.KindDomainRegistration {
			continue
		}
		state, err := s.sagas.GetSagaState(ctx, order.ID)
		if err != nil {
			s.logItemError(ctx, run, "scheduler.recovery.saga_lookup_failed", order.ID, err)
			continue
		}
		if err := guard.EnsureSagaResumable(order, state, cutoff); err != nil {
			if errors.Is(err, guard.ErrSagaInReview) {
				s.logger(ctx).Debug("scheduler.recovery.manual_review", zap.String("order_id", order.ID))
			}
			run.Skip()
			continue
		}
		s.launcher.Launch(ctx, order.ID)
		launched[order.ID] = struct{}{}
		processed++
	}
	return processed, nil
}

// resumeCompensations picks up failed sagas whose order already left the
// funded states, which resumeSagas cannot see.
func (s *Scheduler) resumeCompensations(ctx context.Context, run *jobRun, cutoff time.Time, launched map[string]struct{}) (int, error) {
	no := false
	states, err := s.sagas.ListSagaStates(ctx, sagadomain.ListFilter{
		Statuses:      []sagadomain.Status{sagadomain.StatusFailed},
		ManualReview:  &no,
		Compensated:   &no,
		UpdatedBefore: &cutoff,
		Limit:         s.cfg.BatchSize,
	})
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, state := range states {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if _, ok := launched[state.OrderID]; ok {
			continue
		}
		if guard.EnsureNeedsCompensation(state) != nil {
			run.Skip()
			continue
		}
		s.logger(ctx).Info("scheduler.recovery.compensation", zap.String("order_id", state.OrderID))
		s.launcher.Launch(ctx, state.OrderID)
		processed++
	}
	return processed, nil
}
