package domain

import (
	"context"

	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
)

type Service interface {
	// IngestWebhook verifies and parses a delivery with the gateway's adapter
	// and runs it through the pipeline.
	IngestWebhook(ctx context.Context, gateway, orderID string, req WebhookRequest) (*Result, error)
	ProcessEvent(ctx context.Context, event *Event) (*Result, error)
	// ApplyFunding applies the wallet policy to a reconciled order. It is
	// safe to call again for the same order.
	ApplyFunding(ctx context.Context, orderID string) (*orderdomain.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]Record, error)
}

// SagaLauncher starts registration for a funded order without blocking.
type SagaLauncher interface {
	Launch(ctx context.Context, orderID string)
}
