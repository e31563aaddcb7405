package domain

import "context"

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	// Transition applies a DAG-validated status change.
	Transition(ctx context.Context, id string, to OrderStatus, reason string) (*Order, error)
	// MarkReconciled stores the reconciliation and moves pending → reconciled.
	MarkReconciled(ctx context.Context, id string, rec Reconciliation) (*Order, error)
	Cancel(ctx context.Context, id string, reason string) (*Order, error)
	// ExpireStale moves pending orders older than the payment window to expired.
	ExpireStale(ctx context.Context, limit int) (int, error)
}
