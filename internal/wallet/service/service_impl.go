package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/lock"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	"github.com/smallbiznis/domainpay/internal/wallet/domain"
	"github.com/smallbiznis/domainpay/pkg/db"
	"github.com/smallbiznis/domainpay/pkg/retry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	// owners serializes postings per owner inside this process; the row
	// lock and version check cover other processes.
	owners *lock.KeyedMutex
}

var conflictRetry = retry.Policy{
	MaxAttempts: 3,
	BaseDelay:   10 * time.Millisecond,
	Multiplier:  2,
	Retryable: func(err error) bool {
		return errors.Is(err, domain.ErrConcurrentUpdate) || db.IsTransientTxErr(err)
	},
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      c,
		obsMetrics: p.ObsMetrics,
		owners:     lock.NewKeyedMutex(),
	}
}

func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (*domain.Posting, error) {
	if err := validateCredit(req); err != nil {
		return nil, err
	}
	return s.serialized(ctx, req.OwnerID, func(tx *gorm.DB) (*domain.Posting, error) {
		return s.CreditTx(ctx, tx, req)
	})
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req domain.CreditRequest) (*domain.Posting, error) {
	if err := validateCredit(req); err != nil {
		return nil, err
	}
	return s.post(ctx, tx, strings.TrimSpace(req.OwnerID), req.Amount, req.Reason, req.OrderID, req.Reference)
}

func (s *Service) Debit(ctx context.Context, req domain.DebitRequest) (*domain.Posting, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.ErrInvalidOwner
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.ReasonDebit
	}
	if reason != domain.ReasonDebit {
		return nil, domain.ErrInvalidReason
	}
	return s.serialized(ctx, req.OwnerID, func(tx *gorm.DB) (*domain.Posting, error) {
		return s.post(ctx, tx, strings.TrimSpace(req.OwnerID), req.Amount.Neg(), reason, req.OrderID, req.Reference)
	})
}

// serialized runs fn in its own transaction while holding the owner's lock,
// retrying lost version races and contention aborts.
func (s *Service) serialized(ctx context.Context, ownerID string, fn func(tx *gorm.DB) (*domain.Posting, error)) (*domain.Posting, error) {
	unlock := s.owners.Lock(strings.TrimSpace(ownerID))
	defer unlock()

	posting, _, err := retry.Do(ctx, conflictRetry, func(ctx context.Context, attempt int) (*domain.Posting, error) {
		var out *domain.Posting
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := fn(tx)
			out = p
			return err
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if !posting.Duplicate {
		s.obsMetrics.RecordLedgerEntry(ctx, string(posting.Entry.Reason))
	}
	return posting, nil
}

// post appends the entry and moves the balance in the caller's transaction.
func (s *Service) post(ctx context.Context, tx *gorm.DB, ownerID string, amount decimal.Decimal, reason domain.Reason, orderID, reference string) (*domain.Posting, error) {
	reference = strings.TrimSpace(reference)
	if reference != "" {
		existing, err := s.repo.FindEntryByReference(ctx, tx, reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.duplicate(ctx, tx, existing, ownerID, amount)
		}
	}

	now := s.clock.Now()
	if err := s.repo.EnsureAccount(ctx, tx, ownerID, now); err != nil {
		return nil, err
	}
	account, err := s.repo.LockAccount(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrInvalidOwner
	}

	balance := account.Balance.Add(amount)
	if balance.IsNegative() {
		return nil, domain.ErrInsufficientBalance
	}

	entry := domain.Entry{
		ID:           s.genID.Generate(),
		OwnerID:      ownerID,
		Amount:       amount,
		BalanceAfter: balance,
		Reason:       reason,
		CreatedAt:    now,
	}
	if orderID = strings.TrimSpace(orderID); orderID != "" {
		entry.OrderID = &orderID
	}
	if reference != "" {
		entry.Reference = &reference
	}

	inserted, err := s.repo.InsertEntry(ctx, tx, &entry)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.repo.FindEntryByReference(ctx, tx, reference)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, domain.ErrConcurrentUpdate
		}
		return s.duplicate(ctx, tx, existing, ownerID, amount)
	}

	ok, err := s.repo.UpdateBalance(ctx, tx, ownerID, balance, account.Version, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConcurrentUpdate
	}

	s.log.Info("ledger entry posted",
		zap.String("owner_id", ownerID),
		zap.String("reason", string(reason)),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
		zap.String("order_id", orderID),
	)
	return &domain.Posting{Entry: entry, Balance: balance}, nil
}

func (s *Service) duplicate(ctx context.Context, tx *gorm.DB, existing *domain.Entry, ownerID string, amount decimal.Decimal) (*domain.Posting, error) {
	if existing.OwnerID != ownerID || !existing.Amount.Equal(amount) {
		return nil, domain.ErrReferenceMismatch
	}
	account, err := s.repo.FindAccount(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	balance := decimal.Zero
	if account != nil {
		balance = account.Balance
	}
	return &domain.Posting{Entry: *existing, Balance: balance, Duplicate: true}, nil
}

func (s *Service) Balance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	account, err := s.repo.FindAccount(ctx, s.db, strings.TrimSpace(ownerID))
	if err != nil {
		return decimal.Zero, err
	}
	if account == nil {
		return decimal.Zero, nil
	}
	return account.Balance, nil
}

func (s *Service) Entries(ctx context.Context, ownerID string, limit int) ([]domain.Entry, error) {
	return s.repo.ListEntries(ctx, s.db, strings.TrimSpace(ownerID), limit)
}

func (s *Service) FindByReference(ctx context.Context, reference string) (*domain.Entry, error) {
	return s.repo.FindEntryByReference(ctx, s.db, strings.TrimSpace(reference))
}

func (s *Service) Audit(ctx context.Context) ([]domain.Discrepancy, error) {
	var out []domain.Discrepancy
	after := ""
	for {
		accounts, err := s.repo.ListAccounts(ctx, s.db, after, 200)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			break
		}
		for _, account := range accounts {
			amounts, err := s.repo.ListEntryAmounts(ctx, s.db, account.OwnerID)
			if err != nil {
				return nil, err
			}
			sum := decimal.Sum(decimal.Zero, amounts...)
			if !sum.Equal(account.Balance) {
				out = append(out, domain.Discrepancy{
					OwnerID:  account.OwnerID,
					Balance:  account.Balance,
					EntrySum: sum,
				})
			}
		}
		after = accounts[len(accounts)-1].OwnerID
	}
	return out, nil
}

func validateCredit(req domain.CreditRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return domain.ErrInvalidOwner
	}
	if !req.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !req.Reason.Valid() || req.Reason == domain.ReasonDebit {
		return domain.ErrInvalidReason
	}
	return nil
}
