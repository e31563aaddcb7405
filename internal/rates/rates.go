// Package rates converts crypto amounts to the settlement currency. Live
// rates are cached briefly and kept longer as a last-known fallback for
// when the rate source is down.
package rates

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrRateUnavailable = errors.New("rate_unavailable")

// Source is the upstream rate API.
type Source interface {
	GetRate(ctx context.Context, asset, currency string) (decimal.Decimal, error)
}

// Quoter is what the reconciler consumes.
type Quoter interface {
	Quote(ctx context.Context, asset, currency string) (Quote, error)
}

type Origin string

const (
	OriginLive  Origin = "live"
	OriginCache Origin = "cache"
	OriginStale Origin = "stale"
)

type Quote struct {
	Asset     string
	Currency  string
	Rate      decimal.Decimal
	FetchedAt time.Time
	Origin    Origin
}

// Degraded reports whether the quote is a last-known rate served because
// the source failed.
func (q Quote) Degraded() bool {
	return q.Origin == OriginStale
}

// Snapshot is the cached form of a rate.
type Snapshot struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}
