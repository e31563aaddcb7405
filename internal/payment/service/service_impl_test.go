package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	notificationdomain "github.com/smallbiznis/domainpay/internal/notification/domain"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	orderrepo "github.com/smallbiznis/domainpay/internal/order/repository"
	orderservice "github.com/smallbiznis/domainpay/internal/order/service"
	"github.com/smallbiznis/domainpay/internal/payment/adapters"
	"github.com/smallbiznis/domainpay/internal/payment/adapters/generic"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	"github.com/smallbiznis/domainpay/internal/payment/idempotency"
	"github.com/smallbiznis/domainpay/internal/payment/repository"
	"github.com/smallbiznis/domainpay/internal/payment/service"
	"github.com/smallbiznis/domainpay/internal/rates"
	"github.com/smallbiznis/domainpay/internal/reconcile"
	"github.com/smallbiznis/domainpay/internal/testutil/testdb"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/domainpay/internal/wallet/repository"
	walletservice "github.com/smallbiznis/domainpay/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubQuoter struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	err   error
}

func (q *stubQuoter) Quote(ctx context.Context, asset, currency string) (rates.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return rates.Quote{}, q.err
	}
	rate, ok := q.rates[asset]
	if !ok {
		return rates.Quote{}, rates.ErrRateUnavailable
	}
	return rates.Quote{Asset: asset, Currency: currency, Rate: rate, Origin: rates.OriginLive}, nil
}

func (q *stubQuoter) set(asset, rate string) {
	q.mu.Lock()
	q.rates[asset] = decimal.RequireFromString(rate)
	q.mu.Unlock()
}

func (q *stubQuoter) fail(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

type recordingLauncher struct {
	mu     sync.Mutex
	orders []string
}

func (l *recordingLauncher) Launch(ctx context.Context, orderID string) {
	l.mu.Lock()
	l.orders = append(l.orders, orderID)
	l.mu.Unlock()
}

func (l *recordingLauncher) launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.orders...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notificationdomain.Kind
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient notificationdomain.Recipient, kind notificationdomain.Kind, payload notificationdomain.Payload) {
	n.mu.Lock()
	n.kinds = append(n.kinds, kind)
	n.mu.Unlock()
}

func (n *recordingNotifier) sent() []notificationdomain.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notificationdomain.Kind(nil), n.kinds...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []notificationdomain.Alert
}

func (a *recordingAlerter) Alert(ctx context.Context, alert notificationdomain.Alert) {
	a.mu.Lock()
	a.alerts = append(a.alerts, alert)
	a.mu.Unlock()
}

type harness struct {
	db       *gorm.DB
	svc      paymentdomain.Service
	orders   orderdomain.Service
	wallet   walletdomain.Service
	quoter   *stubQuoter
	launcher *recordingLauncher
	notifier *recordingNotifier
	alerter  *recordingAlerter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	conn := testdb.Open(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())

	h := &harness{
		db: conn,
		quoter: &stubQuoter{rates: map[string]decimal.Decimal{
			"BTC": decimal.RequireFromString("50000"),
			"ETH": decimal.RequireFromString("2000"),
		}},
		launcher: &recordingLauncher{},
		notifier: &recordingNotifier{},
		alerter:  &recordingAlerter{},
	}

	h.wallet = walletservice.NewService(walletservice.Params{
		DB: conn, Log: log, GenID: node, Repo: walletrepo.Provide(), Clock: clk,
	})
	orderRepo := orderrepo.Provide()
	h.orders = orderservice.NewService(orderservice.Params{
		DB: conn, Log: log, GenID: node, Repo: orderRepo, Policy: policy, Wallet: h.wallet, Clock: clk,
	})
	repo := repository.Provide()
	h.svc = service.NewService(service.Params{
		DB:       conn,
		Log:      log,
		Registry: adapters.NewRegistry(generic.New("")),
		Guard: idempotency.NewGuard(idempotency.Params{
			DB: conn, Log: log, GenID: node, Repo: repo, Policy: policy, Clock: clk,
		}),
		Repo:      repo,
		Orders:    h.orders,
		OrderRepo: orderRepo,
		Wallet:    h.wallet,
		Reconciler: reconcile.New(reconcile.Params{
			Quoter: h.quoter, Policy: policy, Log: log,
		}),
		Launcher: h.launcher,
		Notifier: h.notifier,
		Alerter:  h.alerter,
		Clock:    clk,
	})
	return h
}

func (h *harness) createOrder(t *testing.T, id string, kind orderdomain.OrderKind, expected, asset string) {
	t.Helper()
	req := orderdomain.CreateOrderRequest{
		ID:             id,
		OwnerID:        "42",
		Kind:           kind,
		ExpectedAmount: decimal.RequireFromString(expected),
		Asset:          asset,
		PaymentAddress: "addr_" + id,
	}
	if kind == orderdomain.KindDomainRegistration {
		req.Payload = orderdomain.ServicePayload{DomainName: strings.ReplaceAll(id, "_", "-") + ".com"}
	}
	_, err := h.orders.Create(context.Background(), req)
	require.NoError(t, err)
}

func (h *harness) deliver(orderID, asset, amount string, confirmations int, txHash string) (*paymentdomain.Result, error) {
	body, _ := json.Marshal(map[string]any{
		"eventID":       "evt_" + txHash,
		"asset":         asset,
		"amount":        amount,
		"confirmations": confirmations,
		"txHash":        txHash,
	})
	return h.svc.IngestWebhook(context.Background(), "generic", orderID, paymentdomain.WebhookRequest{
		Method: "POST",
		Body:   body,
	})
}

func (h *harness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	balance, err := h.wallet.Balance(context.Background(), "42")
	require.NoError(t, err)
	return balance
}

func (h *harness) status(t *testing.T, id string) orderdomain.OrderStatus {
	t.Helper()
	order, err := h.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func TestUnderpaidDomainOrderCreditsFullAmountAndFails(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_under", orderdomain.KindDomainRegistration, "25.00", "BTC")

	res, err := h.deliver("ord_under", "BTC", "0.00037", 1, "tx_under")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.AdmissionFirstSeen, res.Admission)
	assert.Equal(t, paymentdomain.OutcomeUnderpaid, res.Outcome)
	assert.True(t, res.Credited.Equal(decimal.RequireFromString("18.50")), "credited %s", res.Credited)

	assert.Equal(t, orderdomain.StatusFailed, h.status(t, "ord_under"))
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("18.50")))

	entry, err := h.wallet.FindByReference(context.Background(), walletdomain.PaymentReference("ord_under", "tx_under"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, walletdomain.ReasonUnderpaymentCredit, entry.Reason)

	assert.Empty(t, h.launcher.launched())
	assert.Equal(t, []notificationdomain.Kind{notificationdomain.KindUnderpaidCredited}, h.notifier.sent())
}

func TestOverpaidDomainOrderCreditsSurplusAndLaunches(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_over", orderdomain.KindDomainRegistration, "25.00", "ETH")

	res, err := h.deliver("ord_over", "ETH", "0.016125", 12, "tx_over")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeFunded, res.Outcome)
	assert.True(t, res.Credited.Equal(decimal.RequireFromString("7.25")), "credited %s", res.Credited)
	assert.Equal(t, orderdomain.StatusFunded, h.status(t, "ord_over"))
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("7.25")))
	assert.Equal(t, []string{"ord_over"}, h.launcher.launched())
	assert.Empty(t, h.notifier.sent())
}

func TestExactDomainOrderCreditsNothing(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_exact", orderdomain.KindDomainRegistration, "25.00", "BTC")

	res, err := h.deliver("ord_exact", "BTC", "0.0005", 1, "tx_exact")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeFunded, res.Outcome)
	assert.True(t, res.Credited.IsZero())
	assert.Equal(t, int64(0), testdb.Count(t, h.db, "SELECT COUNT(*) FROM ledger_entries"))
	assert.Equal(t, []string{"ord_exact"}, h.launcher.launched())
}

func TestWalletDepositCreditsEntireAmount(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "dep_1", orderdomain.KindWalletDeposit, "10.00", "BTC")

	res, err := h.deliver("dep_1", "BTC", "0.0003", 1, "tx_dep")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeDeposited, res.Outcome)
	assert.True(t, res.Credited.Equal(decimal.RequireFromString("15")))
	assert.Equal(t, orderdomain.StatusCompleted, h.status(t, "dep_1"))

	entry, err := h.wallet.FindByReference(context.Background(), walletdomain.PaymentReference("dep_1", "tx_dep"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, walletdomain.ReasonOverpaymentCredit, entry.Reason)
	assert.Empty(t, h.launcher.launched())
	assert.Equal(t, []notificationdomain.Kind{notificationdomain.KindDepositCredited}, h.notifier.sent())
}

func TestRepeatedDeliveriesAreAdmittedOnce(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_dup", orderdomain.KindDomainRegistration, "25.00", "BTC")

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		admits  = map[paymentdomain.Admission]int{}
		outcome []paymentdomain.Outcome
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.deliver("ord_dup", "BTC", "0.00037", 1, "tx_dup")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			admits[res.Admission]++
			outcome = append(outcome, res.Outcome)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admits[paymentdomain.AdmissionFirstSeen])
	assert.Equal(t, deliveries-1, admits[paymentdomain.AdmissionDuplicate])
	assert.Contains(t, outcome, paymentdomain.OutcomeUnderpaid)
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM payment_events"))
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM ledger_entries"))
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("18.50")))
	assert.Len(t, h.notifier.sent(), 1)

	// Later redeliveries change nothing either.
	res, err := h.deliver("ord_dup", "BTC", "0.00037", 1, "tx_dup")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM ledger_entries"))
}

func TestUnconfirmedPaymentKeepsOrderPending(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_conf", orderdomain.KindDomainRegistration, "25.00", "ETH")

	res, err := h.deliver("ord_conf", "ETH", "0.0125", 5, "tx_conf")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeAwaitingConfirmations, res.Outcome)
	assert.Equal(t, orderdomain.StatusPending, h.status(t, "ord_conf"))

	res, err = h.deliver("ord_conf", "ETH", "0.0125", 12, "tx_conf")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeFunded, res.Outcome)
	assert.Equal(t, orderdomain.StatusFunded, h.status(t, "ord_conf"))
	assert.Equal(t, int64(2), testdb.Count(t, h.db, "SELECT COUNT(*) FROM payment_events WHERE order_id = ?", "ord_conf"))
}

func TestRateUnavailableLeavesEventRetryable(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_rate", orderdomain.KindDomainRegistration, "25.00", "BTC")

	h.quoter.fail(rates.ErrRateUnavailable)
	_, err := h.deliver("ord_rate", "BTC", "0.0005", 1, "tx_rate")
	require.ErrorIs(t, err, rates.ErrRateUnavailable)
	assert.Equal(t, orderdomain.StatusPending, h.status(t, "ord_rate"))

	h.quoter.fail(nil)
	res, err := h.deliver("ord_rate", "BTC", "0.0005", 1, "tx_rate")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.AdmissionFirstSeen, res.Admission)
	assert.Equal(t, paymentdomain.OutcomeFunded, res.Outcome)
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM payment_events"))
}

func TestPaymentToCanceledOrderIsCreditedAsDeposit(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_cancel", orderdomain.KindDomainRegistration, "25.00", "BTC")
	_, err := h.orders.Cancel(context.Background(), "ord_cancel", "customer request")
	require.NoError(t, err)

	res, err := h.deliver("ord_cancel", "BTC", "0.0005", 1, "tx_late")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeStrayDeposit, res.Outcome)
	assert.Equal(t, orderdomain.StatusCanceled, h.status(t, "ord_cancel"))
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("25")))

	entry, err := h.wallet.FindByReference(context.Background(), walletdomain.PaymentReference("ord_cancel", "tx_late"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, walletdomain.ReasonDeposit, entry.Reason)
	assert.Empty(t, h.launcher.launched())
}

func TestSecondPaymentAfterFundingIsStray(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_twice", orderdomain.KindDomainRegistration, "25.00", "BTC")

	_, err := h.deliver("ord_twice", "BTC", "0.0005", 1, "tx_a")
	require.NoError(t, err)

	res, err := h.deliver("ord_twice", "BTC", "0.0001", 1, "tx_b")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeStrayDeposit, res.Outcome)
	assert.Equal(t, orderdomain.StatusFunded, h.status(t, "ord_twice"))
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("5")))
	assert.Equal(t, []string{"ord_twice"}, h.launcher.launched())
}

func TestStrayRedeliveryAfterRateMoveIsSettled(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_stray", orderdomain.KindDomainRegistration, "25.00", "BTC")

	_, err := h.deliver("ord_stray", "BTC", "0.0005", 1, "tx_a")
	require.NoError(t, err)

	res, err := h.deliver("ord_stray", "BTC", "0.001", 1, "tx_b")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeStrayDeposit, res.Outcome)
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("50")))

	// More confirmations make a new event; the rate has moved meanwhile.
	h.quoter.set("BTC", "51000")
	res, err = h.deliver("ord_stray", "BTC", "0.001", 2, "tx_b")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.AdmissionFirstSeen, res.Admission)
	assert.Equal(t, paymentdomain.OutcomeAlreadySettled, res.Outcome)
	assert.True(t, res.Credited.IsZero())
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("50")))
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM ledger_entries"))
	assert.Len(t, h.notifier.sent(), 1)
}

func TestCanceledReconciledOrderKeepsReceivedValue(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_rc", orderdomain.KindDomainRegistration, "25.00", "BTC")

	_, err := h.orders.MarkReconciled(context.Background(), "ord_rc", orderdomain.Reconciliation{
		Classification:   orderdomain.ClassificationExact,
		SettlementAmount: decimal.RequireFromString("25"),
		ReceivedCrypto:   decimal.RequireFromString("0.0005"),
		Delta:            decimal.Zero,
		TxHash:           "tx_c",
	})
	require.NoError(t, err)

	order, err := h.orders.Cancel(context.Background(), "ord_rc", "customer request")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCanceled, order.Status)
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("25")))

	entry, err := h.wallet.FindByReference(context.Background(), walletdomain.PaymentReference("ord_rc", "tx_c"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, walletdomain.ReasonDeposit, entry.Reason)

	res, err := h.deliver("ord_rc", "BTC", "0.0005", 1, "tx_c")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeAlreadySettled, res.Outcome)
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("25")))
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM ledger_entries"))
	assert.Empty(t, h.launcher.launched())
}

func TestUnknownOrderIsAcknowledgedAndAlerted(t *testing.T) {
	h := newHarness(t)

	res, err := h.deliver("ord_missing", "BTC", "0.0005", 1, "tx_x")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeUnknownOrder, res.Outcome)
	assert.Equal(t, int64(0), testdb.Count(t, h.db, "SELECT COUNT(*) FROM payment_events"))
	require.Len(t, h.alerter.alerts, 1)
	assert.Equal(t, "ord_missing", h.alerter.alerts[0].OrderID)
}

func TestApplyFundingIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_again", orderdomain.KindDomainRegistration, "25.00", "ETH")

	_, err := h.deliver("ord_again", "ETH", "0.016125", 12, "tx_again")
	require.NoError(t, err)

	order, err := h.svc.ApplyFunding(context.Background(), "ord_again")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusFunded, order.Status)
	assert.Equal(t, int64(1), testdb.Count(t, h.db, "SELECT COUNT(*) FROM ledger_entries"))
	assert.Len(t, h.launcher.launched(), 1)
}

func TestApplyFundingResumesReconciledOrder(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "ord_resume", orderdomain.KindDomainRegistration, "25.00", "BTC")

	_, err := h.orders.MarkReconciled(context.Background(), "ord_resume", orderdomain.Reconciliation{
		Classification:   orderdomain.ClassificationOverpaid,
		SettlementAmount: decimal.RequireFromString("30"),
		ReceivedCrypto:   decimal.RequireFromString("0.0006"),
		Delta:            decimal.RequireFromString("5"),
		TxHash:           "tx_resume",
	})
	require.NoError(t, err)

	order, err := h.svc.ApplyFunding(context.Background(), "ord_resume")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusFunded, order.Status)
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("5")))
	assert.Equal(t, []string{"ord_resume"}, h.launcher.launched())
}

func TestInvalidDeliveriesAreRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.IngestWebhook(context.Background(), "nope", "ord_1", paymentdomain.WebhookRequest{Body: []byte(`{}`)})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayNotFound)

	_, err = h.svc.IngestWebhook(context.Background(), "generic", "ord_1", paymentdomain.WebhookRequest{Body: []byte(`not json`)})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = h.deliver("ord_1", "BTC", "0", 1, "tx_zero")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
