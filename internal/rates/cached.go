package rates

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Source     Source
	Store      Store
	Policy     *config.PolicyHolder
	Log        *zap.Logger
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// CachedSource serves a fresh cached rate without calling the source, and
// falls back to the last known rate when the source fails.
type CachedSource struct {
	source     Source
	store      Store
	policy     *config.PolicyHolder
	log        *zap.Logger
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewCachedSource(p Params) *CachedSource {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &CachedSource{
		source:     p.Source,
		store:      p.Store,
		policy:     p.Policy,
		log:        p.Log.Named("rates"),
		clock:      c,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *CachedSource) Quote(ctx context.Context, asset, currency string) (Quote, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	currency = strings.ToUpper(strings.TrimSpace(currency))
	policy := s.policy.Get().Rates
	now := s.clock.Now()

	snap, err := s.store.Get(ctx, asset, currency)
	if err != nil {
		s.log.Warn("rate cache read failed", zap.String("asset", asset), zap.Error(err))
		snap = nil
	}
	if snap != nil && now.Sub(snap.FetchedAt) < policy.FreshFor {
		s.obsMetrics.RecordRateLookup(ctx, asset, string(OriginCache))
		return Quote{Asset: asset, Currency: currency, Rate: snap.Rate, FetchedAt: snap.FetchedAt, Origin: OriginCache}, nil
	}

	fetchCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}
	rate, fetchErr := s.source.GetRate(fetchCtx, asset, currency)
	if fetchErr == nil && rate.IsPositive() {
		fresh := Snapshot{Rate: rate, FetchedAt: now}
		if err := s.store.Put(ctx, asset, currency, fresh, policy.MaxStaleness); err != nil {
			s.log.Warn("rate cache write failed", zap.String("asset", asset), zap.Error(err))
		}
		s.obsMetrics.RecordRateLookup(ctx, asset, string(OriginLive))
		return Quote{Asset: asset, Currency: currency, Rate: rate, FetchedAt: now, Origin: OriginLive}, nil
	}
	if fetchErr == nil {
		fetchErr = fmt.Errorf("non-positive rate %s", rate)
	}

	if snap != nil && now.Sub(snap.FetchedAt) <= policy.MaxStaleness {
		s.log.Warn("rate source failed, using last known rate",
			zap.String("asset", asset),
			zap.String("currency", currency),
			zap.String("rate", snap.Rate.String()),
			zap.Duration("age", now.Sub(snap.FetchedAt)),
			zap.Error(fetchErr),
		)
		s.obsMetrics.RecordRateLookup(ctx, asset, string(OriginStale))
		return Quote{Asset: asset, Currency: currency, Rate: snap.Rate, FetchedAt: snap.FetchedAt, Origin: OriginStale}, nil
	}

	s.obsMetrics.RecordRateLookup(ctx, asset, "unavailable")
	s.log.Error("no usable rate", zap.String("asset", asset), zap.String("currency", currency), zap.Error(fetchErr))
	return Quote{}, fmt.Errorf("%w: %s/%s: %v", ErrRateUnavailable, asset, currency, fetchErr)
}
