package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/domainpay/internal/saga/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const stateColumns = `order_id, status, current_step, contact_handle, dns_zone_id, nameservers,
	dns_degraded, registrar_domain_id, duplicate_registration, contact_attempts, dns_attempts,
	registrar_attempts, persist_attempts, last_error, manual_review, compensated,
	created_at, updated_at, completed_at`

func (r *repo) Find(ctx context.Context, db *gorm.DB, orderID string) (*domain.State, error) {
	var item domain.State
	err := db.WithContext(ctx).Raw(
		`SELECT `+stateColumns+`
		 FROM saga_states
		 WHERE order_id = ?`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.OrderID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, s *domain.State) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO saga_states (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id) DO UPDATE SET
			status = excluded.status,
			current_step = excluded.current_step,
			contact_handle = excluded.contact_handle,
			dns_zone_id = excluded.dns_zone_id,
			nameservers = excluded.nameservers,
			dns_degraded = excluded.dns_degraded,
			registrar_domain_id = excluded.registrar_domain_id,
			duplicate_registration = excluded.duplicate_registration,
			contact_attempts = excluded.contact_attempts,
			dns_attempts = excluded.dns_attempts,
			registrar_attempts = excluded.registrar_attempts,
			persist_attempts = excluded.persist_attempts,
			last_error = excluded.last_error,
			manual_review = excluded.manual_review,
			compensated = excluded.compensated,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		s.OrderID,
		s.Status,
		s.CurrentStep,
		s.ContactHandle,
		s.DNSZoneID,
		s.Nameservers,
		s.DNSDegraded,
		s.RegistrarDomainID,
		s.DuplicateRegistration,
		s.ContactAttempts,
		s.DNSAttempts,
		s.RegistrarAttempts,
		s.PersistAttempts,
		s.LastError,
		s.ManualReview,
		s.Compensated,
		s.CreatedAt,
		s.UpdatedAt,
		s.CompletedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, f domain.ListFilter) ([]domain.State, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ?")
		args = append(args, f.Statuses)
	}
	if f.ManualReview != nil {
		where = append(where, "manual_review = ?")
		args = append(args, *f.ManualReview)
	}
	if f.Compensated != nil {
		where = append(where, "compensated = ?")
		args = append(args, *f.Compensated)
	}
	if f.UpdatedBefore != nil {
		where = append(where, "updated_at < ?")
		args = append(args, *f.UpdatedBefore)
	}

	query := `SELECT ` + stateColumns + ` FROM saga_states`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at ASC, order_id ASC`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	var items []domain.State
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}
