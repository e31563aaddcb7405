// Package idempotency admits each physical payment notification once.
package idempotency

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Policy *config.PolicyHolder
	Clock  clock.Clock `optional:"true"`
}

// Guard deduplicates deliveries on (order id, payload hash). The unique
// constraint decides the race; a claim timestamp keeps a second delivery out
// while the first is still being processed.
type Guard struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	policy *config.PolicyHolder
	clock  clock.Clock
}

func NewGuard(p Params) *Guard {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Guard{
		db:     p.DB,
		log:    p.Log.Named("payment.idempotency"),
		genID:  p.GenID,
		repo:   p.Repo,
		policy: p.Policy,
		clock:  c,
	}
}

// Admit stores the event if it is new and claims it for processing.
//
// A previously stored event that never finished processing (its handler
// failed or crashed) is admitted again once its claim is released or has
// gone stale; everything else is a duplicate.
func (g *Guard) Admit(ctx context.Context, event *domain.Event) (domain.Admission, *domain.Record, error) {
	now := g.clock.Now()
	record := &domain.Record{
		ID:             g.genID.Generate(),
		OrderID:        event.OrderID,
		Gateway:        event.Gateway,
		GatewayEventID: event.GatewayEventID,
		PayloadHash:    event.PayloadHash(),
		Asset:          event.Asset,
		CryptoAmount:   event.Amount,
		Confirmations:  event.Confirmations,
		TxHash:         event.TxHash,
		RawPayload:     datatypes.JSON(event.RawPayload),
		ReceivedAt:     now,
		ClaimedAt:      &now,
	}

	inserted, err := g.repo.InsertEvent(ctx, g.db, record)
	if err != nil {
		return "", nil, err
	}
	if inserted {
		return domain.AdmissionFirstSeen, record, nil
	}

	stored, err := g.repo.FindEvent(ctx, g.db, record.OrderID, record.PayloadHash)
	if err != nil {
		return "", nil, err
	}
	if stored == nil {
		return "", nil, domain.ErrInvalidEvent
	}
	if stored.ProcessedAt != nil {
		return domain.AdmissionDuplicate, stored, nil
	}

	claimed, err := g.repo.ClaimEvent(ctx, g.db, stored.ID, now, now.Add(-g.policy.Get().EventClaimLease))
	if err != nil {
		return "", nil, err
	}
	if !claimed {
		return domain.AdmissionDuplicate, stored, nil
	}
	g.log.Info("re-admitting unfinished payment event",
		zap.String("order_id", stored.OrderID),
		zap.String("gateway_event_id", stored.GatewayEventID),
	)
	stored.ClaimedAt = &now
	return domain.AdmissionFirstSeen, stored, nil
}

// Complete records the outcome. Later deliveries of the same payload are
// duplicates.
func (g *Guard) Complete(ctx context.Context, record *domain.Record, outcome domain.Outcome) error {
	now := g.clock.Now()
	if err := g.repo.MarkProcessed(ctx, g.db, record.ID, outcome, now); err != nil {
		return err
	}
	record.Outcome = &outcome
	record.ProcessedAt = &now
	return nil
}

// Release gives up the claim so a redelivery can retry immediately.
func (g *Guard) Release(ctx context.Context, record *domain.Record) error {
	return g.repo.ReleaseEvent(ctx, g.db, record.ID)
}
