package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/smallbiznis/domainpay/internal/observability/context"
	obslogger "github.com/smallbiznis/domainpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun accumulates what one job invocation did. Nested job calls share
// the outermost run.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time

	processed map[string]int
	skipped   int
	errors    int
}

type jobRunKey struct{}

// Processed records n items of resource handled and exports the count.
func (r *jobRun) Processed(resource string, n int) {
	if r == nil || n <= 0 {
		return
	}
	if r.processed == nil {
		r.processed = make(map[string]int)
	}
	r.processed[resource] += n
	obsmetrics.Scheduler().AddBatchProcessed(r.job, resource, n)
}

// Skip counts a candidate a guard turned away.
func (r *jobRun) Skip() {
	if r != nil {
		r.skipped++
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errors++
	}
}

func (r *jobRun) total() int {
	n := 0
	for _, c := range r.processed {
		n += c
	}
	return n
}

// MarshalLogObject renders the per-resource breakdown in a stable order.
func (r *jobRun) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	resources := make([]string, 0, len(r.processed))
	for resource := range r.processed {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		enc.AddInt(resource, r.processed[resource])
	}
	return nil
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	if obscontext.RequestIDFromContext(ctx) == "" {
		ctx = obscontext.WithRequestID(ctx, "scheduler-"+run.runID)
	}
	return ctx, run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

// logJobFinish stays at debug for idle runs so a quiet system does not log
// every tick.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Duration("elapsed", s.clock.Now().Sub(run.startedAt)),
		zap.Int("processed_count", run.total()),
		zap.Object("processed", run),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.errors),
	}
	log := s.logger(ctx)
	switch {
	case run.errors > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.total() == 0:
		log.Debug("scheduler.job.finish", fields...)
	default:
		log.Info("scheduler.job.finish", fields...)
	}
}

// logItemError counts a failure on one order without failing the job.
func (s *Scheduler) logItemError(ctx context.Context, run *jobRun, msg, orderID string, err error) {
	if err == nil {
		return
	}
	run.IncError()
	s.logger(ctx).Error(msg,
		zap.String("job", run.job),
		zap.String("order_id", orderID),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
}
