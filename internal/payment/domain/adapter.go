package domain

import "context"

// Adapter turns one gateway's webhook format into an Event.
type Adapter interface {
	Gateway() string
	Verify(ctx context.Context, req WebhookRequest) error
	Parse(ctx context.Context, orderID string, req WebhookRequest) (*Event, error)
}
