package domain

import "context"

type Service interface {
	Get(ctx context.Context, name string) (*RegisteredDomain, error)
	GetByOrder(ctx context.Context, orderID string) (*RegisteredDomain, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]RegisteredDomain, error)
}
