package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	domainsrepo "github.com/smallbiznis/domainpay/internal/domains/repository"
	"github.com/smallbiznis/domainpay/internal/lock"
	notificationdomain "github.com/smallbiznis/domainpay/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	orderrepo "github.com/smallbiznis/domainpay/internal/order/repository"
	orderservice "github.com/smallbiznis/domainpay/internal/order/service"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	sagarepo "github.com/smallbiznis/domainpay/internal/saga/repository"
	"github.com/smallbiznis/domainpay/internal/store"
	"github.com/smallbiznis/domainpay/internal/testutil/testdb"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/domainpay/internal/wallet/repository"
	walletservice "github.com/smallbiznis/domainpay/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) IngestWebhook(ctx context.Context, gateway, orderID string, req paymentdomain.WebhookRequest) (*paymentdomain.Result, error) {
	args := m.Called(ctx, gateway, orderID, req)
	return nil, args.Error(1)
}

func (m *mockPayments) ProcessEvent(ctx context.Context, event *paymentdomain.Event) (*paymentdomain.Result, error) {
	args := m.Called(ctx, event)
	return nil, args.Error(1)
}

func (m *mockPayments) ApplyFunding(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	args := m.Called(ctx, orderID)
	order, _ := args.Get(0).(*orderdomain.Order)
	return order, args.Error(1)
}

func (m *mockPayments) ListEvents(ctx context.Context, orderID string) ([]paymentdomain.Record, error) {
	args := m.Called(ctx, orderID)
	return nil, args.Error(1)
}

type recordingLauncher struct {
	mu       sync.Mutex
	launched []string
}

func (l *recordingLauncher) Launch(ctx context.Context, orderID string) {
	l.mu.Lock()
	l.launched = append(l.launched, orderID)
	l.mu.Unlock()
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
	sched    *Scheduler
	clk      *clock.FakeClock
	orders   orderdomain.Service
	wallet   walletdomain.Service
	store    *store.Store
	payments *mockPayments
	launcher *recordingLauncher
	alerter  *recordingAlerter
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry := prometheus.NewRegistry()
	obsmetrics.ResetSchedulerMetricsForTest(registry)
	t.Cleanup(func() { obsmetrics.ResetSchedulerMetricsForTest(prometheus.NewRegistry()) })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	conn := testdb.Open(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticPolicyHolder(config.DefaultPolicy())

	orderRepo := orderrepo.Provide()
	h := &harness{
		db:       conn,
		clk:      clk,
		payments: &mockPayments{},
		launcher: &recordingLauncher{},
		alerter:  &recordingAlerter{},
		registry: registry,
	}
	h.wallet = walletservice.NewService(walletservice.Params{
		DB: conn, Log: log, GenID: node, Repo: walletrepo.Provide(), Clock: clk,
	})
	h.orders = orderservice.NewService(orderservice.Params{
		DB: conn, Log: log, GenID: node, Repo: orderRepo, Policy: holder, Wallet: h.wallet, Clock: clk,
	})
	h.store = store.New(store.Params{
		DB:      conn,
		Log:     log,
		Orders:  orderRepo,
		Domains: domainsrepo.Provide(),
		Sagas:   sagarepo.Provide(),
		Wallet:  h.wallet,
		Clock:   clk,
	})
	h.sched, err = New(Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Policy:    holder,
		Orders:    h.orders,
		OrderRepo: orderRepo,
		Payments:  h.payments,
		Sagas:     h.store,
		Launcher:  h.launcher,
		Wallet:    h.wallet,
		Alerter:   h.alerter,
		Clock:     clk,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) createOrder(t *testing.T, id string) {
	t.Helper()
	_, err := h.orders.Create(context.Background(), orderdomain.CreateOrderRequest{
		ID:             id,
		OwnerID:        "42",
		Kind:           orderdomain.KindDomainRegistration,
		ExpectedAmount: decimal.RequireFromString("10"),
		Asset:          "BTC",
		PaymentAddress: "addr_" + id,
		Payload:        orderdomain.ServicePayload{DomainName: strings.ReplaceAll(id, "_", "-") + ".com"},
	})
	require.NoError(t, err)
}

func (h *harness) reconcile(t *testing.T, id string) {
	t.Helper()
	_, err := h.orders.MarkReconciled(context.Background(), id, orderdomain.Reconciliation{
		Classification:   orderdomain.ClassificationExact,
		SettlementAmount: decimal.RequireFromString("10"),
		ReceivedCrypto:   decimal.RequireFromString("0.0002"),
		TxHash:           "tx_" + id,
	})
	require.NoError(t, err)
}

func (h *harness) fund(t *testing.T, id string) {
	t.Helper()
	h.createOrder(t, id)
	h.reconcile(t, id)
	_, err := h.orders.Transition(context.Background(), id, orderdomain.StatusFunded, "")
	require.NoError(t, err)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	h := newHarness(t)

	err := h.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "domainpay",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "domainpay_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "domainpay",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "domainpay_scheduler_job_errors_total", errorLabels))
}

func TestRunJobSkipsWhileAnotherReplicaHoldsTheLock(t *testing.T) {
	h := newHarness(t)
	locker := lock.NewLocalLocker(h.clk)
	h.sched.locker = locker

	_, ok, err := locker.TryLock(context.Background(), jobLockPrefix+JobExpiry, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = h.sched.runJob(context.Background(), JobExpiry, 10, time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)

	h.clk.Advance(2 * time.Minute)
	err = h.sched.runJob(context.Background(), JobExpiry, 10, time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRecoverySweepReappliesFundingForStuckReconciledOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.createOrder(t, "ord_stuck")
	h.reconcile(t, "ord_stuck")
	h.clk.Advance(20 * time.Minute)
	h.createOrder(t, "ord_fresh")
	h.reconcile(t, "ord_fresh")

	h.payments.On("ApplyFunding", mock.Anything, "ord_stuck").Return(&orderdomain.Order{ID: "ord_stuck"}, nil).Once()

	require.NoError(t, h.sched.RecoverySweepJob(ctx))
	h.payments.AssertExpectations(t)
	h.payments.AssertNotCalled(t, "ApplyFunding", mock.Anything, "ord_fresh")
}

func TestRecoverySweepResumesStaleSagas(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fund(t, "ord_never_started")
	h.fund(t, "ord_review")
	h.fund(t, "ord_alive")
	h.fund(t, "ord_failed")
	for _, id := range []string{"ord_alive", "ord_failed"} {
		_, err := h.orders.Transition(ctx, id, orderdomain.StatusSagaRunning, "")
		require.NoError(t, err)
	}
	require.NoError(t, h.store.UpsertSagaState(ctx, &sagadomain.State{
		OrderID: "ord_review", Status: sagadomain.StatusRunning, CurrentStep: sagadomain.StepPersistence, ManualReview: true,
	}))
	require.NoError(t, h.store.UpsertSagaState(ctx, &sagadomain.State{
		OrderID: "ord_failed", Status: sagadomain.StatusFailed, CurrentStep: sagadomain.StepFailed,
	}))

	h.clk.Advance(20 * time.Minute)
	require.NoError(t, h.store.UpsertSagaState(ctx, &sagadomain.State{
		OrderID: "ord_alive", Status: sagadomain.StatusRunning, CurrentStep: sagadomain.StepRegistrar,
	}))

	require.NoError(t, h.sched.RecoverySweepJob(ctx))
	assert.ElementsMatch(t, []string{"ord_never_started", "ord_failed"}, h.launcher.launched)

	labels := map[string]string{
		"service":  "domainpay",
		"env":      "test",
		"job":      JobRecovery,
		"resource": "saga",
	}
	assert.Equal(t, float64(2), getCounterValue(t, h.registry, "domainpay_scheduler_batch_processed_total", labels))
}

func TestRecoverySweepIgnoresRecentlyFundedOrders(t *testing.T) {
	h := newHarness(t)

	h.fund(t, "ord_new")
	h.clk.Advance(time.Minute)

	require.NoError(t, h.sched.RecoverySweepJob(context.Background()))
	assert.Empty(t, h.launcher.launched)
}

func TestExpirePaymentsJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.createOrder(t, "ord_old")
	h.clk.Advance(25 * time.Hour)
	h.createOrder(t, "ord_new")

	require.NoError(t, h.sched.ExpirePaymentsJob(ctx))

	old, err := h.orders.Get(ctx, "ord_old")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusExpired, old.Status)
	fresh, err := h.orders.Get(ctx, "ord_new")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, fresh.Status)
}

func TestLedgerAuditAlertsOnMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wallet.Credit(ctx, walletdomain.CreditRequest{
		OwnerID:   "42",
		Amount:    decimal.RequireFromString("5"),
		Reason:    walletdomain.ReasonDeposit,
		Reference: "manual:1",
	})
	require.NoError(t, err)

	require.NoError(t, h.sched.LedgerAuditJob(ctx))
	assert.Empty(t, h.alerter.alerts)

	require.NoError(t, h.db.Exec(`UPDATE wallet_accounts SET balance = '7' WHERE owner_id = '42'`).Error)
	require.NoError(t, h.sched.LedgerAuditJob(ctx))
	require.Len(t, h.alerter.alerts, 1)
	assert.Equal(t, notificationdomain.SeverityCritical, h.alerter.alerts[0].Severity)
	assert.Equal(t, "42", h.alerter.alerts[0].Fields["owner_id"])
}

func TestRunOnceHonorsEnabledJobsAndAuditInterval(t *testing.T) {
	h := newHarness(t)
	h.sched.cfg.EnabledJobs = []string{JobLedgerAudit}
	ctx := context.Background()

	h.createOrder(t, "ord_old")
	h.clk.Advance(25 * time.Hour)

	require.NoError(t, h.sched.RunOnce(ctx))
	order, err := h.orders.Get(ctx, "ord_old")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, order.Status)

	labels := map[string]string{"service": "domainpay", "env": "test", "job": JobLedgerAudit}
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "domainpay_scheduler_job_runs_total", labels))

	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "domainpay_scheduler_job_runs_total", labels))

	h.clk.Advance(2 * time.Hour)
	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Equal(t, float64(2), getCounterValue(t, h.registry, "domainpay_scheduler_job_runs_total", labels))
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
