package repository

import (
	"context"

	"github.com/smallbiznis/domainpay/internal/domains/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const domainColumns = `id, domain_name, owner_id, order_id, registrar_domain_id, dns_zone_id,
	nameservers, dns_degraded, status, registered_at, expires_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *domain.RegisteredDomain) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO registered_domains (`+domainColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain_name) DO NOTHING`,
		d.ID,
		d.DomainName,
		d.OwnerID,
		d.OrderID,
		d.RegistrarDomainID,
		d.DNSZoneID,
		d.Nameservers,
		d.DNSDegraded,
		d.Status,
		d.RegisteredAt,
		d.ExpiresAt,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.RegisteredDomain, error) {
	return r.findOne(ctx, db, "domain_name = ?", name)
}

func (r *repo) FindByOrder(ctx context.Context, db *gorm.DB, orderID string) (*domain.RegisteredDomain, error) {
	return r.findOne(ctx, db, "order_id = ?", orderID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.RegisteredDomain, error) {
	var item domain.RegisteredDomain
	err := db.WithContext(ctx).Raw(
		`SELECT `+domainColumns+`
		 FROM registered_domains
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]domain.RegisteredDomain, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.RegisteredDomain
	err := db.WithContext(ctx).Raw(
		`SELECT `+domainColumns+`
		 FROM registered_domains
		 WHERE owner_id = ?
		 ORDER BY registered_at DESC, id DESC
		 LIMIT ?`,
		ownerID,
		limit,
	).Scan(&items).Error
	return items, err
}
