package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentEvents   metric.Int64Counter
	reconciliations metric.Int64Counter
	rateLookups     metric.Int64Counter
	ledgerEntries   metric.Int64Counter
	notifications   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))

	var (
		m   Metrics
		err error
	)
	if m.paymentEvents, err = meter.Int64Counter("domainpay_payment_events_total"); err != nil {
		return nil, err
	}
	if m.reconciliations, err = meter.Int64Counter("domainpay_reconciliations_total"); err != nil {
		return nil, err
	}
	if m.rateLookups, err = meter.Int64Counter("domainpay_rate_lookups_total"); err != nil {
		return nil, err
	}
	if m.ledgerEntries, err = meter.Int64Counter("domainpay_ledger_entries_total"); err != nil {
		return nil, err
	}
	if m.notifications, err = meter.Int64Counter("domainpay_notifications_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordPaymentEvent counts webhook deliveries by gateway and admission outcome.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, gateway, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func (m *Metrics) RecordReconciliation(ctx context.Context, asset, classification string) {
	if m == nil {
		return
	}
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("asset", strings.ToUpper(strings.TrimSpace(asset))),
		attribute.String("classification", classification),
	)...))
}

// RecordRateLookup counts rate resolutions by source (fresh, cached, stale).
func (m *Metrics) RecordRateLookup(ctx context.Context, asset, source string) {
	if m == nil {
		return
	}
	m.rateLookups.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("asset", strings.ToUpper(strings.TrimSpace(asset))),
		attribute.String("source", source),
	)...))
}

func (m *Metrics) RecordLedgerEntry(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

func (m *Metrics) RecordNotification(ctx context.Context, channel, kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("channel", channel),
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)...))
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "domainpay"
}

func constLabels(cfg Config) prometheus.Labels {
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName(cfg),
		"env":     environment,
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"gateway":        {},
	"outcome":        {},
	"asset":          {},
	"classification": {},
	"source":         {},
	"reason":         {},
	"channel":        {},
	"kind":           {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
