package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/lock"
	notificationdomain "github.com/smallbiznis/domainpay/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobRecovery     = "recovery_sweep"
	JobExpiry       = "expire_payments"
	JobLedgerAudit  = "ledger_audit"
	jobLockPrefix   = "scheduler:"
	defaultJobLimit = 30 * time.Second
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Policy    *config.PolicyHolder
	Orders    orderdomain.Service
	OrderRepo orderdomain.Repository
	Payments  paymentdomain.Service
	Sagas     sagadomain.Store
	Launcher  paymentdomain.SagaLauncher
	Wallet    walletdomain.Service
	Alerter   notificationdomain.Alerter `optional:"true"`
	Locker    lock.Locker                `optional:"true"`
	Clock     clock.Clock                `optional:"true"`
	Config    Config                     `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs: stuck-order recovery,
// payment expiry and the ledger audit.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.PolicyHolder
	orders    orderdomain.Service
	orderRepo orderdomain.Repository
	payments  paymentdomain.Service
	sagas     sagadomain.Store
	launcher  paymentdomain.SagaLauncher
	wallet    walletdomain.Service
	alerter   notificationdomain.Alerter
	locker    lock.Locker

	lastAudit time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Policy == nil || p.Orders == nil || p.OrderRepo == nil ||
		p.Payments == nil || p.Sagas == nil || p.Launcher == nil || p.Wallet == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     c,
		policy:    p.Policy,
		orders:    p.Orders,
		orderRepo: p.OrderRepo,
		payments:  p.Payments,
		sagas:     p.Sagas,
		launcher:  p.Launcher,
		wallet:    p.Wallet,
		alerter:   p.Alerter,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok := s.acquire(ctx, name)
	if !ok {
		s.logger(ctx).Debug("scheduler.job.skipped", zap.String("job", name))
		return nil
	}
	defer release()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errors == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the cross-replica job lock. Without a locker every replica
// runs every job, which the jobs tolerate.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := jobLockPrefix + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.JobLockTTL)
	if err != nil {
		s.logger(ctx).Warn("scheduler job lock failed", zap.String("job", name), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger(ctx).Warn("scheduler job unlock failed", zap.String("job", name), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobExpiry, s.isJobEnabled(JobExpiry), func(ctx context.Context) error {
			return s.runJob(ctx, JobExpiry, s.cfg.BatchSize, defaultJobLimit, s.ExpirePaymentsJob)
		}},
		{JobRecovery, s.isJobEnabled(JobRecovery), func(ctx context.Context) error {
			return s.runJob(ctx, JobRecovery, s.cfg.BatchSize, defaultJobLimit, s.RecoverySweepJob)
		}},
		{JobLedgerAudit, s.isJobEnabled(JobLedgerAudit) && s.auditDue(), func(ctx context.Context) error {
			return s.runJob(ctx, JobLedgerAudit, 0, 2*time.Minute, s.LedgerAuditJob)
		}},
	}

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if runErr := job.Run(parent); runErr != nil {
			err = errors.Join(err, runErr)
		}
		if parent.Err() != nil {
			break
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs on this replica
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) auditDue() bool {
	now := s.clock.Now()
	if !s.lastAudit.IsZero() && now.Sub(s.lastAudit) < s.cfg.AuditInterval {
		return false
	}
	s.lastAudit = now
	return true
}
