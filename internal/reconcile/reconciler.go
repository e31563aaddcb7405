// Package reconcile classifies a confirmed payment against what the order
// expected.
package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/config"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	"github.com/smallbiznis/domainpay/internal/rates"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInsufficientConfirmations = errors.New("insufficient_confirmations")
	ErrInvalidPayment            = errors.New("invalid_payment")
)

// Payment is the part of a gateway event the reconciler needs.
type Payment struct {
	Asset         string
	CryptoAmount  decimal.Decimal
	Confirmations int
	TxHash        string
}

type Reconciler interface {
	// Reconcile converts and classifies payment for order. It returns
	// ErrInsufficientConfirmations below the asset threshold and
	// rates.ErrRateUnavailable when no usable rate exists.
	Reconcile(ctx context.Context, order *orderdomain.Order, payment Payment) (orderdomain.Reconciliation, error)
	// Convert values amount of asset in the settlement currency.
	Convert(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, bool, error)
	Confirmed(asset string, confirmations int) bool
}

type Params struct {
	fx.In

	Quoter     rates.Quoter
	Policy     *config.PolicyHolder
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	quoter     rates.Quoter
	policy     *config.PolicyHolder
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) Reconciler {
	return &Service{
		quoter:     p.Quoter,
		policy:     p.Policy,
		log:        p.Log.Named("reconcile"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Confirmed(asset string, confirmations int) bool {
	return confirmations >= s.policy.Get().RequiredConfirmations(asset)
}

func (s *Service) Convert(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	policy := s.policy.Get()
	quote, err := s.quoter.Quote(ctx, asset, policy.SettlementCurrency)
	if err != nil {
		return decimal.Zero, false, err
	}
	// Settlement amounts are stored with 8 decimal places.
	return amount.Mul(quote.Rate).Round(8), quote.Degraded(), nil
}

func (s *Service) Reconcile(ctx context.Context, order *orderdomain.Order, payment Payment) (orderdomain.Reconciliation, error) {
	if order == nil || !payment.CryptoAmount.IsPositive() || strings.TrimSpace(payment.Asset) == "" {
		return orderdomain.Reconciliation{}, ErrInvalidPayment
	}
	if !s.Confirmed(payment.Asset, payment.Confirmations) {
		return orderdomain.Reconciliation{}, ErrInsufficientConfirmations
	}

	settlement, degraded, err := s.Convert(ctx, payment.Asset, payment.CryptoAmount)
	if err != nil {
		return orderdomain.Reconciliation{}, err
	}

	delta := settlement.Sub(order.ExpectedAmount)
	rec := orderdomain.Reconciliation{
		Classification:   Classify(delta, s.policy.Get().ToleranceAmount()),
		SettlementAmount: settlement,
		ReceivedCrypto:   payment.CryptoAmount,
		Delta:            delta,
		TxHash:           strings.TrimSpace(payment.TxHash),
		RateDegraded:     degraded,
	}

	s.obsMetrics.RecordReconciliation(ctx, strings.ToUpper(payment.Asset), string(rec.Classification))
	log := s.log.With(
		zap.String("order_id", order.ID),
		zap.String("asset", payment.Asset),
		zap.String("crypto_amount", payment.CryptoAmount.String()),
		zap.String("settlement_amount", settlement.String()),
		zap.String("expected_amount", order.ExpectedAmount.String()),
		zap.String("classification", string(rec.Classification)),
	)
	if degraded {
		log.Warn("payment reconciled with last known rate")
	} else {
		log.Info("payment reconciled")
	}
	return rec, nil
}

// Classify applies the tolerance band: |delta| ≤ ε is exact.
func Classify(delta, tolerance decimal.Decimal) orderdomain.Classification {
	switch {
	case delta.Abs().LessThanOrEqual(tolerance):
		return orderdomain.ClassificationExact
	case delta.IsPositive():
		return orderdomain.ClassificationOverpaid
	default:
		return orderdomain.ClassificationUnderpaid
	}
}
