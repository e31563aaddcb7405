package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/clock"
	notificationdomain "github.com/smallbiznis/domainpay/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	orderservice "github.com/smallbiznis/domainpay/internal/order/service"
	"github.com/smallbiznis/domainpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	"github.com/smallbiznis/domainpay/internal/payment/idempotency"
	"github.com/smallbiznis/domainpay/internal/reconcile"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Registry   *adapters.Registry
	Guard      *idempotency.Guard
	Repo       paymentdomain.Repository
	Orders     orderdomain.Service
	OrderRepo  orderdomain.Repository
	Wallet     walletdomain.Service
	Reconciler reconcile.Reconciler
	Launcher   paymentdomain.SagaLauncher  `optional:"true"`
	Notifier   notificationdomain.Notifier `optional:"true"`
	Alerter    notificationdomain.Alerter  `optional:"true"`
	Clock      clock.Clock                 `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

// Service is the payment pipeline: adapter, idempotency guard, reconciler,
// wallet policy, order status and finally the saga launch.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	registry   *adapters.Registry
	guard      *idempotency.Guard
	repo       paymentdomain.Repository
	orders     orderdomain.Service
	orderRepo  orderdomain.Repository
	wallet     walletdomain.Service
	reconciler reconcile.Reconciler
	launcher   paymentdomain.SagaLauncher
	notifier   notificationdomain.Notifier
	alerter    notificationdomain.Alerter
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		registry:   p.Registry,
		guard:      p.Guard,
		repo:       p.Repo,
		orders:     p.Orders,
		orderRepo:  p.OrderRepo,
		wallet:     p.Wallet,
		reconciler: p.Reconciler,
		launcher:   p.Launcher,
		notifier:   p.Notifier,
		alerter:    p.Alerter,
		clock:      c,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, gateway, orderID string, req paymentdomain.WebhookRequest) (*paymentdomain.Result, error) {
	orderID = strings.TrimSpace(orderID)
	adapter, err := s.registry.Adapter(gateway)
	if err != nil {
		return nil, err
	}
	if err := adapter.Verify(ctx, req); err != nil {
		return nil, err
	}

	event, err := adapter.Parse(ctx, orderID, req)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		s.log.Debug("gateway event ignored", zap.String("gateway", gateway), zap.String("order_id", orderID))
		return &paymentdomain.Result{Outcome: paymentdomain.OutcomeIgnored, OrderID: orderID}, nil
	}
	if err != nil {
		return nil, err
	}
	if event.OrderID != orderID {
		return nil, paymentdomain.ErrOrderMismatch
	}
	return s.ProcessEvent(ctx, event)
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.Event) (*paymentdomain.Result, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	log := s.log.With(
		zap.String("order_id", event.OrderID),
		zap.String("gateway", event.Gateway),
		zap.String("gateway_event_id", event.GatewayEventID),
	)

	order, err := s.orders.Get(ctx, event.OrderID)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		// Nothing can be credited without an owner. Answer 2xx so the gateway
		// stops retrying and leave it to an operator.
		log.Error("payment for unknown order", zap.String("tx_hash", event.TxHash), zap.String("amount", event.Amount.String()))
		s.alert(ctx, notificationdomain.Alert{
			Severity: notificationdomain.SeverityCritical,
			Title:    "payment for unknown order",
			OrderID:  event.OrderID,
			Message:  "a gateway reported a payment for an order that does not exist",
			Fields: map[string]string{
				"gateway": event.Gateway,
				"asset":   event.Asset,
				"amount":  event.Amount.String(),
				"tx_hash": event.TxHash,
			},
		})
		s.obsMetrics.RecordPaymentEvent(ctx, event.Gateway, string(paymentdomain.OutcomeUnknownOrder))
		return &paymentdomain.Result{Outcome: paymentdomain.OutcomeUnknownOrder, OrderID: event.OrderID}, nil
	}
	if err != nil {
		return nil, err
	}

	admission, record, err := s.guard.Admit(ctx, event)
	if err != nil {
		return nil, err
	}
	if admission == paymentdomain.AdmissionDuplicate {
		log.Debug("duplicate payment event")
		s.obsMetrics.RecordPaymentEvent(ctx, event.Gateway, string(paymentdomain.OutcomeDuplicate))
		return &paymentdomain.Result{
			Admission:   admission,
			Outcome:     paymentdomain.OutcomeDuplicate,
			OrderID:     order.ID,
			OrderStatus: string(order.Status),
		}, nil
	}

	result, err := s.process(ctx, order, event)
	if err != nil {
		if relErr := s.guard.Release(ctx, record); relErr != nil {
			log.Warn("failed to release payment event claim", zap.Error(relErr))
		}
		return nil, err
	}
	result.Admission = admission

	if err := s.guard.Complete(ctx, record, result.Outcome); err != nil {
		// Every effect is keyed by ledger reference or guarded by order
		// status, so a redelivery after this only repeats no-ops.
		log.Warn("failed to mark payment event processed", zap.Error(err))
	}
	s.obsMetrics.RecordPaymentEvent(ctx, event.Gateway, string(result.Outcome))
	log.Info("payment event processed",
		zap.String("outcome", string(result.Outcome)),
		zap.String("order_status", result.OrderStatus),
		zap.String("credited", result.Credited.String()),
	)
	return result, nil
}

func (s *Service) process(ctx context.Context, order *orderdomain.Order, event *paymentdomain.Event) (*paymentdomain.Result, error) {
	result := &paymentdomain.Result{OrderID: order.ID}

	if !s.reconciler.Confirmed(event.Asset, event.Confirmations) {
		result.Outcome = paymentdomain.OutcomeAwaitingConfirmations
		result.OrderStatus = string(order.Status)
		return result, nil
	}

	if order.Status == orderdomain.StatusPending {
		rec, err := s.reconciler.Reconcile(ctx, order, reconcile.Payment{
			Asset:         event.Asset,
			CryptoAmount:  event.Amount,
			Confirmations: event.Confirmations,
			TxHash:        event.TxHash,
		})
		if err != nil {
			return nil, err
		}
		reconciled, err := s.orders.MarkReconciled(ctx, order.ID, rec)
		switch {
		case errors.Is(err, orderdomain.ErrInvalidTransition):
			// Canceled or expired between the read and the update.
			reconciled, err = s.orders.Get(ctx, order.ID)
			if err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		}
		order = reconciled
	}

	if order.PaidTxHash == nil || *order.PaidTxHash != event.TxHash {
		return s.creditStray(ctx, order, event)
	}

	f, err := s.applyFunding(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	result.OrderStatus = string(f.order.Status)
	result.Credited = f.credited
	result.Outcome = outcomeFor(f)
	return result, nil
}

// creditStray credits a confirmed payment that did not settle the order it
// names. No value is discarded.
//
// A tx is converted once. Gateways redeliver it with more confirmations,
// which is a new event, and by then the rate has usually moved; the first
// credit stands.
func (s *Service) creditStray(ctx context.Context, order *orderdomain.Order, event *paymentdomain.Event) (*paymentdomain.Result, error) {
	reference := walletdomain.PaymentReference(order.ID, event.TxHash)
	existing, err := s.wallet.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Debug("stray payment already credited",
			zap.String("order_id", order.ID),
			zap.String("tx_hash", event.TxHash),
			zap.String("amount", existing.Amount.String()),
		)
		return &paymentdomain.Result{
			Outcome:     paymentdomain.OutcomeAlreadySettled,
			OrderID:     order.ID,
			OrderStatus: string(order.Status),
		}, nil
	}

	amount, degraded, err := s.reconciler.Convert(ctx, event.Asset, event.Amount)
	if err != nil {
		return nil, err
	}
	posting, err := s.wallet.Credit(ctx, walletdomain.CreditRequest{
		OwnerID:   order.OwnerID,
		Amount:    amount,
		Reason:    walletdomain.ReasonDeposit,
		OrderID:   order.ID,
		Reference: reference,
	})
	if errors.Is(err, walletdomain.ErrReferenceMismatch) {
		// A concurrent delivery of the same tx converted at another rate
		// and committed first.
		return &paymentdomain.Result{
			Outcome:     paymentdomain.OutcomeAlreadySettled,
			OrderID:     order.ID,
			OrderStatus: string(order.Status),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.log.Warn("stray payment credited to wallet",
		zap.String("order_id", order.ID),
		zap.String("order_status", string(order.Status)),
		zap.String("tx_hash", event.TxHash),
		zap.String("amount", amount.String()),
		zap.Bool("rate_degraded", degraded),
	)
	if !posting.Duplicate {
		s.notify(ctx, order, notificationdomain.KindDepositCredited, notificationdomain.Payload{
			"order_id": order.ID,
			"amount":   amount.StringFixed(2),
			"balance":  posting.Balance.StringFixed(2),
			"reason":   string(walletdomain.ReasonDeposit),
		})
	}
	return &paymentdomain.Result{
		Outcome:     paymentdomain.OutcomeStrayDeposit,
		OrderID:     order.ID,
		OrderStatus: string(order.Status),
		Credited:    amount,
	}, nil
}

func (s *Service) ApplyFunding(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	f, err := s.applyFunding(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return f.order, nil
}

// funding is one pass of the wallet policy over an order.
type funding struct {
	order    *orderdomain.Order
	credited decimal.Decimal
	reason   walletdomain.Reason
	// applied is false when the order was already past reconciled.
	applied bool
}

type decision struct {
	credit decimal.Decimal
	reason walletdomain.Reason
	next   orderdomain.OrderStatus
	note   string
}

// fundingDecision is the wallet policy for a reconciled order:
//
//	domain order, exact      nothing credited, funded
//	domain order, overpaid   surplus credited, funded
//	domain order, underpaid  full settlement credited, failed
//	wallet deposit           full settlement credited, completed
func fundingDecision(order *orderdomain.Order) (decision, error) {
	if order.Classification == nil || !order.SettlementAmount.Valid || order.PaidTxHash == nil {
		return decision{}, orderdomain.ErrInvalidOrder
	}
	settlement := order.SettlementAmount.Decimal

	if order.Kind == orderdomain.KindWalletDeposit {
		reason := walletdomain.ReasonDeposit
		switch *order.Classification {
		case orderdomain.ClassificationOverpaid:
			reason = walletdomain.ReasonOverpaymentCredit
		case orderdomain.ClassificationUnderpaid:
			reason = walletdomain.ReasonUnderpaymentCredit
		}
		return decision{credit: settlement, reason: reason, next: orderdomain.StatusCompleted}, nil
	}

	switch *order.Classification {
	case orderdomain.ClassificationExact:
		return decision{next: orderdomain.StatusFunded}, nil
	case orderdomain.ClassificationOverpaid:
		return decision{
			credit: settlement.Sub(order.ExpectedAmount),
			reason: walletdomain.ReasonOverpaymentCredit,
			next:   orderdomain.StatusFunded,
		}, nil
	case orderdomain.ClassificationUnderpaid:
		return decision{
			credit: settlement,
			reason: walletdomain.ReasonUnderpaymentCredit,
			next:   orderdomain.StatusFailed,
			note:   paymentdomain.ErrUnderpaidOrder.Error(),
		}, nil
	default:
		return decision{}, orderdomain.ErrInvalidOrder
	}
}

// applyFunding runs the wallet policy for a reconciled order. The credit and
// the status change commit together; the saga launch and notifications
// happen after commit.
func (s *Service) applyFunding(ctx context.Context, orderID string) (*funding, error) {
	out := &funding{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		out.order = order
		if order.Status != orderdomain.StatusReconciled {
			return nil
		}

		d, err := fundingDecision(order)
		if err != nil {
			return err
		}
		if d.credit.IsPositive() {
			posting, err := s.wallet.CreditTx(ctx, tx, walletdomain.CreditRequest{
				OwnerID:   order.OwnerID,
				Amount:    d.credit,
				Reason:    d.reason,
				OrderID:   order.ID,
				Reference: walletdomain.PaymentReference(order.ID, *order.PaidTxHash),
			})
			if err != nil {
				return err
			}
			out.credited = posting.Entry.Amount
			out.reason = d.reason
		}

		next, err := orderservice.Transition(ctx, tx, s.orderRepo, order.ID, d.next, d.note, s.clock.Now())
		if err != nil {
			return err
		}
		out.order = next
		out.applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.applied {
		s.log.Info("funding policy applied",
			zap.String("order_id", out.order.ID),
			zap.String("order_kind", string(out.order.Kind)),
			zap.String("order_status", string(out.order.Status)),
			zap.String("credited", out.credited.String()),
			zap.String("reason", string(out.reason)),
		)
		s.afterFunding(ctx, out)
	}
	return out, nil
}

func (s *Service) afterFunding(ctx context.Context, f *funding) {
	order := f.order
	switch order.Status {
	case orderdomain.StatusFunded:
		s.launch(ctx, order.ID)
	case orderdomain.StatusFailed:
		s.notify(ctx, order, notificationdomain.KindUnderpaidCredited, notificationdomain.Payload{
			"order_id":    order.ID,
			"domain_name": order.Payload().DomainName,
			"expected":    order.ExpectedAmount.StringFixed(2),
			"received":    order.SettlementAmount.Decimal.StringFixed(2),
			"amount":      f.credited.StringFixed(2),
		})
	case orderdomain.StatusCompleted:
		s.notify(ctx, order, notificationdomain.KindDepositCredited, notificationdomain.Payload{
			"order_id": order.ID,
			"amount":   f.credited.StringFixed(2),
			"reason":   string(f.reason),
		})
	}
}

func (s *Service) ListEvents(ctx context.Context, orderID string) ([]paymentdomain.Record, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, orderdomain.ErrInvalidOrder
	}
	return s.repo.ListByOrder(ctx, s.db, orderID)
}

func (s *Service) launch(ctx context.Context, orderID string) {
	if s.launcher == nil {
		s.log.Warn("no saga launcher, funded order waits for the recovery sweep", zap.String("order_id", orderID))
		return
	}
	s.launcher.Launch(ctx, orderID)
}

func (s *Service) notify(ctx context.Context, order *orderdomain.Order, kind notificationdomain.Kind, payload notificationdomain.Payload) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notificationdomain.RecipientFor(order), kind, payload)
}

func (s *Service) alert(ctx context.Context, alert notificationdomain.Alert) {
	if s.alerter == nil {
		return
	}
	s.alerter.Alert(ctx, alert)
}

func outcomeFor(f *funding) paymentdomain.Outcome {
	if !f.applied {
		return paymentdomain.OutcomeAlreadySettled
	}
	switch f.order.Status {
	case orderdomain.StatusFailed:
		return paymentdomain.OutcomeUnderpaid
	case orderdomain.StatusCompleted:
		return paymentdomain.OutcomeDeposited
	default:
		return paymentdomain.OutcomeFunded
	}
}

func validateEvent(event *paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.OrderID = strings.TrimSpace(event.OrderID)
	event.Gateway = strings.ToLower(strings.TrimSpace(event.Gateway))
	event.GatewayEventID = strings.TrimSpace(event.GatewayEventID)
	event.TxHash = strings.TrimSpace(event.TxHash)
	event.Asset = strings.ToUpper(strings.TrimSpace(event.Asset))
	if event.TxHash == "" {
		event.TxHash = event.GatewayEventID
	}
	if event.OrderID == "" || event.Gateway == "" || event.TxHash == "" || event.Asset == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if !event.Amount.IsPositive() || event.Confirmations < 0 {
		return paymentdomain.ErrInvalidEvent
	}
	if len(event.RawPayload) == 0 {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}
