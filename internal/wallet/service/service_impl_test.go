package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/testutil/testdb"
	"github.com/smallbiznis/domainpay/internal/wallet/domain"
	"github.com/smallbiznis/domainpay/internal/wallet/repository"
	"github.com/smallbiznis/domainpay/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return service.NewService(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	}), conn
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sumEntries(t *testing.T, svc domain.Service, owner string) decimal.Decimal {
	t.Helper()
	entries, err := svc.Entries(context.Background(), owner, 1000)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func TestCreditAppendsEntryAndMovesBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	posting, err := svc.Credit(ctx, domain.CreditRequest{
		OwnerID: "u1",
		Amount:  dec("18.50"),
		Reason:  domain.ReasonUnderpaymentCredit,
		OrderID: "ord_1",
	})
	require.NoError(t, err)
	assert.False(t, posting.Duplicate)
	assert.True(t, posting.Balance.Equal(dec("18.5")))
	assert.True(t, posting.Entry.BalanceAfter.Equal(dec("18.5")))
	require.NotNil(t, posting.Entry.OrderID)
	assert.Equal(t, "ord_1", *posting.Entry.OrderID)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("18.5")))
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	_, err := svc.Credit(ctx, domain.CreditRequest{OwnerID: "", Amount: dec("1"), Reason: domain.ReasonDeposit})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
	_, err = svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("-1"), Reason: domain.ReasonDeposit})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("1"), Reason: domain.ReasonDebit})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
	_, err = svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("1"), Reason: "bonus"})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
}

func TestCreditWithReferenceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	req := domain.CreditRequest{
		OwnerID:   "u1",
		Amount:    dec("7.25"),
		Reason:    domain.ReasonOverpaymentCredit,
		OrderID:   "ord_1",
		Reference: domain.PaymentReference("ord_1", "0xabc"),
	}
	first, err := svc.Credit(ctx, req)
	require.NoError(t, err)
	second, err := svc.Credit(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.True(t, second.Balance.Equal(dec("7.25")))

	entries, err := svc.Entries(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	req.Amount = dec("9")
	_, err = svc.Credit(ctx, req)
	assert.ErrorIs(t, err, domain.ErrReferenceMismatch)
}

func TestDebitNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	_, err := svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("10"), Reason: domain.ReasonDeposit})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, domain.DebitRequest{OwnerID: "u1", Amount: dec("10.01")})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("10")), "failed debit must leave the balance untouched")

	posting, err := svc.Debit(ctx, domain.DebitRequest{OwnerID: "u1", Amount: dec("4")})
	require.NoError(t, err)
	assert.True(t, posting.Entry.Amount.Equal(dec("-4")))
	assert.Equal(t, domain.ReasonDebit, posting.Entry.Reason)
	assert.True(t, posting.Balance.Equal(dec("6")))
}

func TestConcurrentDebitsRacingSameBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	_, err := svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("10"), Reason: domain.ReasonDeposit})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, domain.DebitRequest{OwnerID: "u1", Amount: dec("3")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 5, rejected)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("1")))
	assert.True(t, sumEntries(t, svc, "u1").Equal(balance))
}

func TestConservationUnderConcurrentCredits(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := "u1"
			if i%2 == 1 {
				owner = "u2"
			}
			_, err := svc.Credit(ctx, domain.CreditRequest{
				OwnerID: owner,
				Amount:  dec("1.10"),
				Reason:  domain.ReasonDeposit,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, owner := range []string{"u1", "u2"} {
		balance, err := svc.Balance(ctx, owner)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("5.5")), "owner %s balance %s", owner, balance)
		assert.True(t, sumEntries(t, svc, owner).Equal(balance))
	}

	discrepancies, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestLedgerEntriesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	svc, conn := setup(t)

	posting, err := svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("5"), Reason: domain.ReasonDeposit})
	require.NoError(t, err)

	err = conn.Exec(`UPDATE ledger_entries SET amount = '500' WHERE id = ?`, posting.Entry.ID).Error
	assert.Error(t, err)
	err = conn.Exec(`DELETE FROM ledger_entries WHERE id = ?`, posting.Entry.ID).Error
	assert.Error(t, err)
}

func TestAuditReportsTamperedBalance(t *testing.T) {
	ctx := context.Background()
	svc, conn := setup(t)

	_, err := svc.Credit(ctx, domain.CreditRequest{OwnerID: "u1", Amount: dec("5"), Reason: domain.ReasonDeposit})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, domain.CreditRequest{OwnerID: "u2", Amount: dec("2"), Reason: domain.ReasonDeposit})
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`UPDATE wallet_accounts SET balance = '9' WHERE owner_id = ?`, "u2").Error)

	discrepancies, err := svc.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, "u2", discrepancies[0].OwnerID)
	assert.True(t, discrepancies[0].EntrySum.Equal(dec("2")))
}

func TestCreditTxRollsBackWithCaller(t *testing.T) {
	ctx := context.Background()
	svc, conn := setup(t)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreditTx(ctx, tx, domain.CreditRequest{
			OwnerID:   "u1",
			Amount:    dec("25"),
			Reason:    domain.ReasonRefund,
			Reference: domain.RefundReference("ord_9"),
		})
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	entry, err := svc.FindByReference(ctx, domain.RefundReference("ord_9"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}
