package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/order/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"github.com/smallbiznis/domainpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Policy *config.PolicyHolder
	Wallet walletdomain.Service
	Clock  clock.Clock `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	policy *config.PolicyHolder
	wallet walletdomain.Service
	clock  clock.Clock
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("order.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		policy: p.Policy,
		wallet: p.Wallet,
		clock:  c,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	switch req.Kind {
	case domain.KindDomainRegistration, domain.KindWalletDeposit:
	default:
		return nil, domain.ErrInvalidKind
	}
	if strings.TrimSpace(req.OwnerID) == "" || strings.TrimSpace(req.Asset) == "" {
		return nil, domain.ErrInvalidOrder
	}
	if !req.ExpectedAmount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	payload, err := req.Payload.Normalize(req.Kind)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = "ord_" + s.genID.Generate().String()
	}
	now := s.clock.Now()
	order := &domain.Order{
		ID:             id,
		OwnerID:        strings.TrimSpace(req.OwnerID),
		Kind:           req.Kind,
		ExpectedAmount: req.ExpectedAmount,
		Asset:          strings.ToUpper(strings.TrimSpace(req.Asset)),
		PaymentAddress: strings.TrimSpace(req.PaymentAddress),
		Status:         domain.StatusPending,
		ServicePayload: datatypes.NewJSONType(payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOrderExists
		}
		return nil, err
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) Transition(ctx context.Context, id string, to domain.OrderStatus, reason string) (*domain.Order, error) {
	var out *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := Transition(ctx, tx, s.repo, id, to, reason, s.clock.Now())
		out = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transition validates and applies one DAG edge inside the caller's
// transaction. Re-applying the status the order already has is a no-op.
func Transition(ctx context.Context, tx *gorm.DB, repo domain.Repository, id string, to domain.OrderStatus, reason string, now time.Time) (*domain.Order, error) {
	order, err := repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.Status == to {
		return order, nil
	}
	if !domain.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, to)
	}

	var reasonPtr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		reasonPtr = &reason
	}
	ok, err := repo.UpdateStatus(ctx, tx, id, []domain.OrderStatus{order.Status}, to, reasonPtr, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConcurrentTransition
	}
	order.Status = to
	order.UpdatedAt = now
	if reasonPtr != nil {
		order.FailureReason = reasonPtr
	}
	return order, nil
}

func (s *Service) MarkReconciled(ctx context.Context, id string, rec domain.Reconciliation) (*domain.Order, error) {
	ok, err := s.repo.RecordReconciliation(ctx, s.db, id, rec, s.clock.Now())
	if err != nil {
		return nil, err
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && order.Status != domain.StatusReconciled {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, domain.StatusReconciled)
	}
	return order, nil
}

func (s *Service) Cancel(ctx context.Context, id string, reason string) (*domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCanceled {
		return order, nil
	}
	if !order.Status.Cancelable() {
		return nil, domain.ErrNotCancelable
	}

	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "canceled"
	}
	if order.Status == domain.StatusReconciled {
		return s.cancelReconciled(ctx, order, reason)
	}
	ok, err := s.repo.UpdateStatus(ctx, s.db, order.ID,
		[]domain.OrderStatus{domain.StatusPending},
		domain.StatusCanceled, &reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Paid or expired between the read and the update.
		return nil, domain.ErrNotCancelable
	}
	s.log.Info("order canceled", zap.String("order_id", order.ID), zap.String("reason", reason))
	return s.Get(ctx, order.ID)
}

// cancelReconciled cancels an order whose payment already settled. The
// settlement goes to the owner's wallet under the payment reference in the
// same transaction, so a later redelivery of that tx credits nothing twice.
func (s *Service) cancelReconciled(ctx context.Context, order *domain.Order, reason string) (*domain.Order, error) {
	settled := order.PaidTxHash != nil && order.SettlementAmount.Valid && order.SettlementAmount.Decimal.IsPositive()
	if settled && s.wallet == nil {
		return nil, fmt.Errorf("%w: settled payment needs a wallet to refund into", domain.ErrNotCancelable)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateStatus(ctx, tx, order.ID,
			[]domain.OrderStatus{domain.StatusReconciled},
			domain.StatusCanceled, &reason, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			// Funding was applied between the read and the update.
			return domain.ErrNotCancelable
		}
		if !settled {
			return nil
		}
		_, err = s.wallet.CreditTx(ctx, tx, walletdomain.CreditRequest{
			OwnerID:   order.OwnerID,
			Amount:    order.SettlementAmount.Decimal,
			Reason:    walletdomain.ReasonDeposit,
			OrderID:   order.ID,
			Reference: walletdomain.PaymentReference(order.ID, *order.PaidTxHash),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("order_id", order.ID), zap.String("reason", reason)}
	if settled {
		fields = append(fields, zap.String("credited", order.SettlementAmount.Decimal.String()))
	}
	s.log.Info("reconciled order canceled", fields...)
	return s.Get(ctx, order.ID)
}

func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.policy.Get().PaymentExpiry)

	stale, err := s.repo.ListByStatus(ctx, s.db, []domain.OrderStatus{domain.StatusPending}, cutoff, limit)
	if err != nil {
		return 0, err
	}

	reason := "payment window elapsed"
	expired := 0
	for _, order := range stale {
		ok, err := s.repo.UpdateStatus(ctx, s.db, order.ID,
			[]domain.OrderStatus{domain.StatusPending}, domain.StatusExpired, &reason, now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.log.Info("expired pending orders", zap.Int("count", expired))
	}
	return expired, nil
}
