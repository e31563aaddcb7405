package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/wallet/domain"
	"github.com/smallbiznis/domainpay/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const entryColumns = `id, owner_id, amount, balance_after, reason, order_id, reference, created_at`

func (r *repo) EnsureAccount(ctx context.Context, conn *gorm.DB, ownerID string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO wallet_accounts (owner_id, balance, version, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (owner_id) DO NOTHING`,
		ownerID,
		decimal.Zero,
		now,
		now,
	).Error
}

func (r *repo) LockAccount(ctx context.Context, conn *gorm.DB, ownerID string) (*domain.Account, error) {
	return r.findAccount(ctx, conn, ownerID, db.ForUpdate(conn))
}

func (r *repo) FindAccount(ctx context.Context, conn *gorm.DB, ownerID string) (*domain.Account, error) {
	return r.findAccount(ctx, conn, ownerID, "")
}

func (r *repo) findAccount(ctx context.Context, conn *gorm.DB, ownerID, suffix string) (*domain.Account, error) {
	var item domain.Account
	err := conn.WithContext(ctx).Raw(
		`SELECT owner_id, balance, version, created_at, updated_at
		 FROM wallet_accounts
		 WHERE owner_id = ?`+suffix,
		ownerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.OwnerID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListAccounts(ctx context.Context, conn *gorm.DB, afterOwnerID string, limit int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = 200
	}
	var items []domain.Account
	err := conn.WithContext(ctx).Raw(
		`SELECT owner_id, balance, version, created_at, updated_at
		 FROM wallet_accounts
		 WHERE owner_id > ?
		 ORDER BY owner_id ASC
		 LIMIT ?`,
		afterOwnerID,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) UpdateBalance(ctx context.Context, conn *gorm.DB, ownerID string, balance decimal.Decimal, version int64, now time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE wallet_accounts
		 SET balance = ?, version = version + 1, updated_at = ?
		 WHERE owner_id = ? AND version = ?`,
		balance,
		now,
		ownerID,
		version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEntry(ctx context.Context, conn *gorm.DB, entry *domain.Entry) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (reference) DO NOTHING`,
		entry.ID,
		entry.OwnerID,
		entry.Amount,
		entry.BalanceAfter,
		entry.Reason,
		entry.OrderID,
		entry.Reference,
		entry.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEntryByReference(ctx context.Context, conn *gorm.DB, reference string) (*domain.Entry, error) {
	var item domain.Entry
	err := conn.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE reference = ?
		 LIMIT 1`,
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListEntries(ctx context.Context, conn *gorm.DB, ownerID string, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Entry
	err := conn.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		ownerID,
		limit,
	).Scan(&items).Error
	return items, err
}

// ListEntryAmounts returns raw amounts so the sum is computed with decimal
// arithmetic regardless of how the dialect aggregates numerics.
func (r *repo) ListEntryAmounts(ctx context.Context, conn *gorm.DB, ownerID string) ([]decimal.Decimal, error) {
	var rows []struct {
		Amount decimal.Decimal
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT amount FROM ledger_entries WHERE owner_id = ?`,
		ownerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	amounts := make([]decimal.Decimal, 0, len(rows))
	for _, row := range rows {
		amounts = append(amounts, row.Amount)
	}
	return amounts, nil
}
