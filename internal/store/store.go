// Package store is the saga's transactional view over orders, saga states,
// registered domains and the wallet.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/domainpay/internal/clock"
	domainsdomain "github.com/smallbiznis/domainpay/internal/domains/domain"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	orderservice "github.com/smallbiznis/domainpay/internal/order/service"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Orders  orderdomain.Repository
	Domains domainsdomain.Repository
	Sagas   sagadomain.Repository
	Wallet  walletdomain.Service
	Clock   clock.Clock `optional:"true"`
}

type Store struct {
	db      *gorm.DB
	log     *zap.Logger
	orders  orderdomain.Repository
	domains domainsdomain.Repository
	sagas   sagadomain.Repository
	wallet  walletdomain.Service
	clock   clock.Clock
}

var _ sagadomain.Store = (*Store)(nil)

func New(p Params) *Store {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Store{
		db:      p.DB,
		log:     p.Log.Named("store"),
		orders:  p.Orders,
		domains: p.Domains,
		sagas:   p.Sagas,
		wallet:  p.Wallet,
		clock:   c,
	}
}

var Module = fx.Module("store",
	fx.Provide(
		New,
		func(s *Store) sagadomain.Store { return s },
	),
)

func (s *Store) GetOrder(ctx context.Context, id string) (*orderdomain.Order, error) {
	order, err := s.orders.FindByID(ctx, s.db, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, to orderdomain.OrderStatus, reason string) (*orderdomain.Order, error) {
	var out *orderdomain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := orderservice.Transition(ctx, tx, s.orders, id, to, reason, s.clock.Now())
		out = order
		return err
	})
	return out, err
}

func (s *Store) GetSagaState(ctx context.Context, orderID string) (*sagadomain.State, error) {
	return s.sagas.Find(ctx, s.db, orderID)
}

func (s *Store) UpsertSagaState(ctx context.Context, state *sagadomain.State) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsert(ctx, tx, state)
	})
}

func (s *Store) upsert(ctx context.Context, tx *gorm.DB, state *sagadomain.State) error {
	now := s.clock.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	return s.sagas.Upsert(ctx, tx, state)
}

func (s *Store) ListSagaStates(ctx context.Context, filter sagadomain.ListFilter) ([]sagadomain.State, error) {
	return s.sagas.List(ctx, s.db, filter)
}

func (s *Store) InsertRegisteredDomain(ctx context.Context, d *domainsdomain.RegisteredDomain) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insertDomain(ctx, tx, d)
	})
}

// insertDomain is idempotent for the order that owns the name.
func (s *Store) insertDomain(ctx context.Context, tx *gorm.DB, d *domainsdomain.RegisteredDomain) error {
	inserted, err := s.domains.Insert(ctx, tx, d)
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}
	existing, err := s.domains.FindByName(ctx, tx, d.DomainName)
	if err != nil {
		return err
	}
	if existing != nil && existing.OrderID == d.OrderID {
		*d = *existing
		return nil
	}
	return fmt.Errorf("%w: %s", domainsdomain.ErrDomainTaken, d.DomainName)
}

func (s *Store) CompleteRegistration(ctx context.Context, d *domainsdomain.RegisteredDomain, state *sagadomain.State) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertDomain(ctx, tx, d); err != nil {
			return err
		}
		now := s.clock.Now()
		if _, err := orderservice.Transition(ctx, tx, s.orders, state.OrderID, orderdomain.StatusCompleted, "", now); err != nil {
			return err
		}
		state.Status = sagadomain.StatusCompleted
		state.CurrentStep = sagadomain.StepCompleted
		state.LastError = nil
		state.CompletedAt = &now
		return s.upsert(ctx, tx, state)
	})
}

func (s *Store) Compensate(ctx context.Context, state *sagadomain.State, refund walletdomain.CreditRequest, reason string) (*walletdomain.Posting, error) {
	var posting *walletdomain.Posting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.wallet.CreditTx(ctx, tx, refund)
		if err != nil {
			return err
		}
		posting = p

		now := s.clock.Now()
		if _, err := orderservice.Transition(ctx, tx, s.orders, state.OrderID, orderdomain.StatusFailed, reason, now); err != nil {
			return err
		}
		state.Status = sagadomain.StatusFailed
		state.CurrentStep = sagadomain.StepFailed
		state.Compensated = true
		if state.CompletedAt == nil {
			state.CompletedAt = &now
		}
		return s.upsert(ctx, tx, state)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("saga compensated",
		zap.String("order_id", state.OrderID),
		zap.String("refund", refund.Amount.String()),
		zap.Bool("duplicate", posting.Duplicate),
	)
	return posting, nil
}
