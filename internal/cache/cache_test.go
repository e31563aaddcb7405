package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLCacheExpires(t *testing.T) {
	clk := &manualClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTLCacheWithClock[string, int](clk.Now)

	c.Set("btc", 1, time.Minute)
	v, ok := c.Get("btc")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.advance(time.Minute)
	_, ok = c.Get("btc")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheZeroTTLKeepsEntry(t *testing.T) {
	clk := &manualClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTLCacheWithClock[string, string](clk.Now)

	c.Set("k", "v", 0)
	clk.advance(365 * 24 * time.Hour)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rate|btc|usd", Key("rate", " BTC ", "", "usd"))
}
