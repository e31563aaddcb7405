package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent reports false when (order_id, payload_hash) already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, record *Record) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, orderID, payloadHash string) (*Record, error)
	// ClaimEvent takes over an unprocessed event whose claim is older than
	// staleBefore.
	ClaimEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome Outcome, processedAt time.Time) error
	ListByOrder(ctx context.Context, db *gorm.DB, orderID string) ([]Record, error)
}
