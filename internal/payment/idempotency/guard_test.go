package idempotency_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/payment/domain"
	"github.com/smallbiznis/domainpay/internal/payment/idempotency"
	"github.com/smallbiznis/domainpay/internal/payment/repository"
	"github.com/smallbiznis/domainpay/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGuard(t *testing.T) (*idempotency.Guard, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	guard := idempotency.NewGuard(idempotency.Params{
		DB:     testdb.Open(t),
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Clock:  clk,
	})
	return guard, clk
}

func event(confirmations int) *domain.Event {
	raw := `{"order_id":"ord_1","tx":"tx_1","confirmations":` + strconv.Itoa(confirmations) + `}`
	return &domain.Event{
		Gateway:        "generic",
		GatewayEventID: "evt_1",
		OrderID:        "ord_1",
		Asset:          "BTC",
		Amount:         decimal.RequireFromString("0.0005"),
		Confirmations:  confirmations,
		TxHash:         "tx_1",
		RawPayload:     []byte(raw),
	}
}

func TestAdmitOnceThenDuplicate(t *testing.T) {
	ctx := context.Background()
	guard, _ := newGuard(t)

	admission, record, err := guard.Admit(ctx, event(1))
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionFirstSeen, admission)
	require.NotNil(t, record.ClaimedAt)

	// Claimed and still in flight.
	admission, _, err = guard.Admit(ctx, event(1))
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionDuplicate, admission)

	require.NoError(t, guard.Complete(ctx, record, domain.OutcomeFunded))
	require.NotNil(t, record.ProcessedAt)

	admission, stored, err := guard.Admit(ctx, event(1))
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionDuplicate, admission)
	require.NotNil(t, stored.Outcome)
	assert.Equal(t, domain.OutcomeFunded, *stored.Outcome)
}

func TestAdmitMoreConfirmationsIsNewEvent(t *testing.T) {
	ctx := context.Background()
	guard, _ := newGuard(t)

	_, first, err := guard.Admit(ctx, event(1))
	require.NoError(t, err)
	require.NoError(t, guard.Complete(ctx, first, domain.OutcomeAwaitingConfirmations))

	admission, second, err := guard.Admit(ctx, event(2))
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionFirstSeen, admission)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAdmitAfterReleaseOrStaleClaim(t *testing.T) {
	ctx := context.Background()
	guard, clk := newGuard(t)

	_, record, err := guard.Admit(ctx, event(1))
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, record))

	admission, again, err := guard.Admit(ctx, event(1))
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionFirstSeen, admission)
	assert.Equal(t, record.ID, again.ID)

	// The handler died without releasing; the claim goes stale.
	clk.Advance(config.DefaultPolicy().EventClaimLease + time.Second)
	admission, _, err = guard.Admit(ctx, event(1))
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionFirstSeen, admission)
}
