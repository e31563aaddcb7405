package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/smallbiznis/domainpay/internal/domains/domain"
	"github.com/smallbiznis/domainpay/internal/domains/repository"
	"github.com/smallbiznis/domainpay/internal/domains/service"
	"github.com/smallbiznis/domainpay/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisteredDomainLookups(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	zone := "zone_1"
	inserted, err := repo.Insert(ctx, conn, &domain.RegisteredDomain{
		ID:                1,
		DomainName:        "example.com",
		OwnerID:           "42",
		OrderID:           "ord_1",
		RegistrarDomainID: "778",
		DNSZoneID:         &zone,
		Nameservers:       pq.StringArray{"ana.ns.cloudflare.com", "bob.ns.cloudflare.com"},
		Status:            domain.StatusActive,
		RegisteredAt:      now,
		ExpiresAt:         now.AddDate(1, 0, 0),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	again, err := repo.Insert(ctx, conn, &domain.RegisteredDomain{
		ID: 2, DomainName: "example.com", OwnerID: "7", OrderID: "ord_2", RegistrarDomainID: "x",
		Status: domain.StatusActive, RegisteredAt: now, ExpiresAt: now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, again)

	svc := service.NewService(service.Params{DB: conn, Log: zap.NewNop(), Repo: repo})

	got, err := svc.Get(ctx, "EXAMPLE.com.")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", got.OrderID)
	assert.Equal(t, []string{"ana.ns.cloudflare.com", "bob.ns.cloudflare.com"}, []string(got.Nameservers))

	byOrder, err := svc.GetByOrder(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", byOrder.DomainName)

	owned, err := svc.ListByOwner(ctx, "42", 10)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	_, err = svc.Get(ctx, "missing.org")
	assert.ErrorIs(t, err, domain.ErrDomainNotFound)
	_, err = svc.Get(ctx, "not a domain")
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
}
