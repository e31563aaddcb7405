package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainpay/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const eventColumns = `id, order_id, gateway, gateway_event_id, payload_hash, asset, crypto_amount,
	confirmations, tx_hash, raw_payload, outcome, received_at, claimed_at, processed_at`

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, record *domain.Record) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id, payload_hash) DO NOTHING`,
		record.ID,
		record.OrderID,
		record.Gateway,
		record.GatewayEventID,
		record.PayloadHash,
		record.Asset,
		record.CryptoAmount,
		record.Confirmations,
		record.TxHash,
		record.RawPayload,
		record.Outcome,
		record.ReceivedAt,
		record.ClaimedAt,
		record.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, orderID, payloadHash string) (*domain.Record, error) {
	var item domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM payment_events
		 WHERE order_id = ? AND payload_hash = ?
		 LIMIT 1`,
		orderID,
		payloadHash,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ClaimEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET claimed_at = ?
		 WHERE id = ? AND processed_at IS NULL
		   AND (claimed_at IS NULL OR claimed_at < ?)`,
		now,
		id,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReleaseEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET claimed_at = NULL
		 WHERE id = ? AND processed_at IS NULL`,
		id,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome domain.Outcome, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET outcome = ?, processed_at = ?
		 WHERE id = ?`,
		outcome,
		processedAt,
		id,
	).Error
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID string) ([]domain.Record, error) {
	var items []domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM payment_events
		 WHERE order_id = ?
		 ORDER BY received_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	return items, err
}
