package scheduler

import (
	"context"

	notificationdomain "github.com/smallbiznis/domainpay/internal/notification/domain"
	"go.uber.org/zap"
)

// ExpirePaymentsJob expires pending orders whose payment window has passed.
func (s *Scheduler) ExpirePaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpiry, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	expired, err := s.orders.ExpireStale(ctx, s.cfg.BatchSize)
	run.Processed("order", expired)
	return err
}

// LedgerAuditJob compares every wallet balance with the sum of its ledger
// entries and raises a critical alert per mismatch. It never repairs.
func (s *Scheduler) LedgerAuditJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLedgerAudit, 0)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	discrepancies, err := s.wallet.Audit(ctx)
	if err != nil {
		return err
	}
	for _, d := range discrepancies {
		run.IncError()
		s.logger(ctx).Error("scheduler.ledger.mismatch",
			zap.String("owner_id", d.OwnerID),
			zap.String("balance", d.Balance.String()),
			zap.String("entry_sum", d.EntrySum.String()),
		)
		if s.alerter == nil {
			continue
		}
		s.alerter.Alert(ctx, notificationdomain.Alert{
			Severity: notificationdomain.SeverityCritical,
			Title:    "Wallet balance does not match ledger",
			Message:  "balance " + d.Balance.String() + " != entries " + d.EntrySum.String(),
			Fields: map[string]string{
				"owner_id":  d.OwnerID,
				"balance":   d.Balance.String(),
				"entry_sum": d.EntrySum.String(),
			},
		})
	}
	run.Processed("discrepancy", len(discrepancies))
	return nil
}
