package fastforex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/providers/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fetch-one", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("from"))
		assert.Equal(t, "USD", r.URL.Query().Get("to"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"base":"BTC","result":{"USD":64250.12},"updated":"2026-03-01 12:00:00","ms":4}`))
	}))
	defer srv.Close()

	rate, err := NewClient(srv.URL, "key", time.Second).GetRate(context.Background(), "btc", "usd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("64250.12")))
}

func TestGetRateMissingCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"BTC","result":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", time.Second).GetRate(context.Background(), "BTC", "USD")
	require.Error(t, err)
	assert.Equal(t, provider.CategoryBadData, provider.CategoryOf(err))
}

func TestGetRateOutageIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", time.Second).GetRate(context.Background(), "BTC", "USD")
	require.Error(t, err)
	assert.True(t, provider.IsRetryable(err))
}
