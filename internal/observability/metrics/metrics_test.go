package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("gateway", "blockbee"),
		attribute.String("order_id", "ord_1"),
		attribute.String("owner_id", "42"),
		attribute.String("asset", "BTC"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("gateway"), attrs[0].Key)
	assert.Equal(t, attribute.Key("asset"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordPaymentEvent(ctx, "generic", "first_seen")
	m.RecordReconciliation(ctx, "BTC", "exact")
	m.RecordRateLookup(ctx, "BTC", "fresh")
	m.RecordLedgerEntry(ctx, "refund")
	m.RecordNotification(ctx, "telegram", "registered", "sent")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordLedgerEntry(context.Background(), "deposit")
}
