package domain

import (
	"context"

	domainsdomain "github.com/smallbiznis/domainpay/internal/domains/domain"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
)

// Store is the saga's view of persistence. Every call runs in its own
// transaction.
type Store interface {
	GetOrder(ctx context.Context, id string) (*orderdomain.Order, error)
	// UpdateOrderStatus applies a DAG-validated transition.
	UpdateOrderStatus(ctx context.Context, id string, to orderdomain.OrderStatus, reason string) (*orderdomain.Order, error)
	// GetSagaState returns nil when the saga has not started.
	GetSagaState(ctx context.Context, orderID string) (*State, error)
	UpsertSagaState(ctx context.Context, state *State) error
	ListSagaStates(ctx context.Context, filter ListFilter) ([]State, error)
	InsertRegisteredDomain(ctx context.Context, d *domainsdomain.RegisteredDomain) error
	// CompleteRegistration records the domain, completes the order and the
	// saga state in one transaction.
	CompleteRegistration(ctx context.Context, d *domainsdomain.RegisteredDomain, state *State) error
	// Compensate refunds the funded amount, fails the order and marks the
	// saga compensated in one transaction.
	Compensate(ctx context.Context, state *State, refund walletdomain.CreditRequest, reason string) (*walletdomain.Posting, error)
}
