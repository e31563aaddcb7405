// Package fastforex is the rate-source client.
package fastforex

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/providers/provider"
)

const providerName = "fastforex"

type Client struct {
	http   *provider.Client
	apiKey string
}

func New(cfg config.Config, policy *config.PolicyHolder) *Client {
	return NewClient(cfg.FastForex.BaseURL, cfg.FastForex.APIKey, policy.Get().Rates.Timeout)
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:   provider.NewClient(providerName, baseURL, timeout, nil),
		apiKey: strings.TrimSpace(apiKey),
	}
}

type fetchOneResponse struct {
	Base    string                     `json:"base"`
	Result  map[string]decimal.Decimal `json:"result"`
	Updated string                     `json:"updated"`
}

// GetRate returns how many units of currency one unit of asset is worth.
func (c *Client) GetRate(ctx context.Context, asset, currency string) (decimal.Decimal, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	currency = strings.ToUpper(strings.TrimSpace(currency))

	var resp fetchOneResponse
	err := c.http.Do(ctx, provider.Request{
		Op:     "fetch_one",
		Method: http.MethodGet,
		Path:   "/fetch-one",
		Query: url.Values{
			"from":    {asset},
			"to":      {currency},
			"api_key": {c.apiKey},
		},
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}

	rate, ok := resp.Result[currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, provider.NewError(provider.CategoryBadData, providerName, "fetch_one", "missing rate for "+asset+"/"+currency, nil)
	}
	return rate, nil
}
