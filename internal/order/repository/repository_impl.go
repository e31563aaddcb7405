package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/domainpay/internal/order/domain"
	"github.com/smallbiznis/domainpay/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, owner_id, kind, expected_amount, asset, payment_address, status,
	service_payload, settlement_amount, received_crypto, classification, paid_tx_hash,
	rate_degraded, failure_reason, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OwnerID,
		order.Kind,
		order.ExpectedAmount,
		order.Asset,
		order.PaymentAddress,
		order.Status,
		order.ServicePayload,
		order.SettlementAmount,
		order.ReceivedCrypto,
		order.Classification,
		order.PaidTxHash,
		order.RateDegraded,
		order.FailureReason,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id string) (*domain.Order, error) {
	return r.find(ctx, conn, id, "")
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, id string) (*domain.Order, error) {
	return r.find(ctx, conn, id, db.ForUpdate(conn))
}

func (r *repo) find(ctx context.Context, conn *gorm.DB, id, suffix string) (*domain.Order, error) {
	var item domain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = ?`+suffix,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id string, from []domain.OrderStatus, to domain.OrderStatus, reason *string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, failure_reason = COALESCE(?, failure_reason), updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		reason,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordReconciliation(ctx context.Context, db *gorm.DB, id string, rec domain.Reconciliation, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, settlement_amount = ?, received_crypto = ?, classification = ?,
			paid_tx_hash = ?, rate_degraded = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusReconciled,
		rec.SettlementAmount,
		rec.ReceivedCrypto,
		rec.Classification,
		rec.TxHash,
		rec.RateDegraded,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, statuses []domain.OrderStatus, updatedBefore time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status IN ? AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		statuses,
		updatedBefore,
		limit,
	).Scan(&items).Error
	return items, err
}
