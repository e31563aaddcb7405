package domain

import "context"

// Notifier delivers user notifications. Notify never blocks on delivery and
// never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, recipient Recipient, kind Kind, payload Payload)
}

// Alerter delivers operator alerts, best effort.
type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient Recipient, msg Message) error
}
