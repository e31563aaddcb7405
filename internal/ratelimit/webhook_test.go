package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWebhookLimiterAdmits(t *testing.T) {
	l := NewWebhookLimiter(config.Config{}, nil)
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "blockbee")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 4*time.Second, bucketTTL(20, 40))
	assert.Equal(t, time.Second, bucketTTL(1000, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(0), toInt(nil))
	assert.InDelta(t, 2.5, toFloat("2.5"), 0.0001)
	assert.InDelta(t, 3.0, toFloat(int64(3)), 0.0001)
}
