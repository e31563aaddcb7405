package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/domainpay/internal/config"
)

const keyWebhookGateway = "domainpay:ratelimit:webhook:%s"

// WebhookLimiter bounds inbound webhook deliveries per gateway. A nil or
// disabled limiter admits everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil
	}
	if cfg.RateLimit.WebhookRate <= 0 || cfg.RateLimit.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.WebhookRate,
		burst:  cfg.RateLimit.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WebhookLimiter) Allow(ctx context.Context, gateway string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookGateway, strings.ToLower(strings.TrimSpace(gateway)))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
