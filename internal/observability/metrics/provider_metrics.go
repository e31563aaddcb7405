package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics records every outbound collaborator call.
type ProviderMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	providerMetricsOnce sync.Once
	providerMetrics     *ProviderMetrics
)

func Providers() *ProviderMetrics {
	return ProvidersWithConfig(Config{})
}

func ProvidersWithConfig(cfg Config) *ProviderMetrics {
	providerMetricsOnce.Do(func() {
		providerMetrics = newProviderMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return providerMetrics
}

func newProviderMetrics(registerer prometheus.Registerer, cfg Config) *ProviderMetrics {
	labels := constLabels(cfg)
	m := &ProviderMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "domainpay_provider_calls_total",
			Help:        "Outbound provider calls by provider, operation and outcome.",
			ConstLabels: labels,
		}, []string{"provider", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "domainpay_provider_call_duration_seconds",
			Help:        "Outbound provider call latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
			ConstLabels: labels,
		}, []string{"provider", "op"}),
	}
	registerer.MustRegister(m.calls, m.duration)
	return m
}

func (m *ProviderMetrics) ObserveCall(provider, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(provider, op, outcome).Inc()
	m.duration.WithLabelValues(provider, op).Observe(d.Seconds())
}
