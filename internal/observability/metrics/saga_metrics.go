package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics tracks registration saga health: outcomes, per-step attempts
// and the escalations operators must act on.
type SagaMetrics struct {
	runs          *prometheus.CounterVec
	stepAttempts  *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	manualReviews prometheus.Counter
	compensations *prometheus.CounterVec
	dnsDegraded   prometheus.Counter
	queueDepth    prometheus.Gauge
	queueDropped  prometheus.Counter
}

var (
	sagaMetricsOnce sync.Once
	sagaMetrics     *SagaMetrics
)

func Saga() *SagaMetrics {
	return SagaWithConfig(Config{})
}

func SagaWithConfig(cfg Config) *SagaMetrics {
	sagaMetricsOnce.Do(func() {
		sagaMetrics = newSagaMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sagaMetrics
}

// ResetSagaMetricsForTest swaps the singleton for one bound to registerer.
func ResetSagaMetricsForTest(registerer prometheus.Registerer) *SagaMetrics {
	sagaMetricsOnce = sync.Once{}
	sagaMetrics = nil
	sagaMetricsOnce.Do(func() {
		sagaMetrics = newSagaMetrics(registerer, Config{ServiceName: "domainpay", Environment: "test"})
	})
	return sagaMetrics
}

func newSagaMetrics(registerer prometheus.Registerer, cfg Config) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &SagaMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "domainpay_saga_runs_total",
			Help:        "Registration saga runs by terminal outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "domainpay_saga_step_attempts_total",
			Help:        "Saga step attempts by step and result.",
			ConstLabels: labels,
		}, []string{"step", "result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "domainpay_saga_step_duration_seconds",
			Help:        "Wall time spent in a saga step including retries.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"step"}),
		manualReviews: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "domainpay_saga_manual_review_total",
			Help:        "Sagas flagged for operator review after persistence retries were exhausted.",
			ConstLabels: labels,
		}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "domainpay_saga_compensations_total",
			Help:        "Compensating refunds issued for failed sagas.",
			ConstLabels: labels,
		}, []string{"result"}),
		dnsDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "domainpay_saga_dns_degraded_total",
			Help:        "Registrations that fell back to registrar default nameservers.",
			ConstLabels: labels,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "domainpay_saga_queue_depth",
			Help:        "Sagas waiting for a worker.",
			ConstLabels: labels,
		}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "domainpay_saga_queue_dropped_total",
			Help:        "Saga submissions rejected because the queue was full; the recovery sweep picks them up.",
			ConstLabels: labels,
		}),
	}

	registerer.MustRegister(
		m.runs,
		m.stepAttempts,
		m.stepDuration,
		m.manualReviews,
		m.compensations,
		m.dnsDegraded,
		m.queueDepth,
		m.queueDropped,
	)
	return m
}

func (m *SagaMetrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *SagaMetrics) IncStepAttempt(step, result string) {
	if m == nil {
		return
	}
	m.stepAttempts.WithLabelValues(step, result).Inc()
}

func (m *SagaMetrics) ObserveStepDuration(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *SagaMetrics) IncManualReview() {
	if m == nil {
		return
	}
	m.manualReviews.Inc()
}

func (m *SagaMetrics) IncCompensation(result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(result).Inc()
}

func (m *SagaMetrics) IncDNSDegraded() {
	if m == nil {
		return
	}
	m.dnsDegraded.Inc()
}

func (m *SagaMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *SagaMetrics) IncQueueDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}
