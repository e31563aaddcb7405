package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/domainpay/internal/domains/domain"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("domains.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, name string) (*domain.RegisteredDomain, error) {
	normalized, err := orderdomain.NormalizeDomainName(name)
	if err != nil {
		return nil, domain.ErrInvalidDomain
	}
	item, err := s.repo.FindByName(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrDomainNotFound
	}
	return item, nil
}

func (s *Service) GetByOrder(ctx context.Context, orderID string) (*domain.RegisteredDomain, error) {
	item, err := s.repo.FindByOrder(ctx, s.db, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrDomainNotFound
	}
	return item, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.RegisteredDomain, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidDomain
	}
	return s.repo.ListByOwner(ctx, s.db, ownerID, limit)
}
