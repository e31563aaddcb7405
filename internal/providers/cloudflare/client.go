// Package cloudflare hosts DNS zones for managed-nameserver orders.
package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/providers/provider"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
)

const providerName = "cloudflare"

// codeZoneExists is returned when the zone is already in an account.
const codeZoneExists = 1061

type Client struct {
	http      *provider.Client
	accountID string
}

var _ sagadomain.DNSHost = (*Client)(nil)

func New(cfg config.Config, policy *config.PolicyHolder) *Client {
	return NewClient(cfg.Cloudflare.BaseURL, cfg.Cloudflare.APIToken, cfg.Cloudflare.AccountID, policy.Get().Saga.RequestTimeout)
}

func NewClient(baseURL, token, accountID string, timeout time.Duration) *Client {
	token = strings.TrimSpace(token)
	return &Client{
		http: provider.NewClient(providerName, baseURL, timeout, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}),
		accountID: strings.TrimSpace(accountID),
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response[T any] struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
	Result  T          `json:"result"`
}

type zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	NameServers []string `json:"name_servers"`
}

func (z zone) toDomain() sagadomain.Zone {
	return sagadomain.Zone{ID: z.ID, Nameservers: z.NameServers}
}

type createZoneRequest struct {
	Name    string `json:"name"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
	Type string `json:"type"`
}

// CreateZone returns sagadomain.ErrZoneExists when the zone is already
// hosted; callers resolve it with GetZone.
func (c *Client) CreateZone(ctx context.Context, domain string) (sagadomain.Zone, error) {
	body := createZoneRequest{Name: normalize(domain), Type: "full"}
	body.Account.ID = c.accountID

	var resp response[zone]
	err := c.http.Do(ctx, provider.Request{
		Op:     "create_zone",
		Method: http.MethodPost,
		Path:   "/zones",
		Body:   body,
	}, &resp)
	if err != nil {
		if hasCode(err, codeZoneExists) {
			return sagadomain.Zone{}, errors.Join(sagadomain.ErrZoneExists, err)
		}
		return sagadomain.Zone{}, err
	}
	if !resp.Success {
		if containsCode(resp.Errors, codeZoneExists) {
			return sagadomain.Zone{}, sagadomain.ErrZoneExists
		}
		return sagadomain.Zone{}, provider.NewError(provider.CategoryRejected, providerName, "create_zone", firstMessage(resp.Errors), nil)
	}
	if resp.Result.ID == "" {
		return sagadomain.Zone{}, provider.NewError(provider.CategoryBadData, providerName, "create_zone", "no zone id returned", nil)
	}
	return resp.Result.toDomain(), nil
}

func (c *Client) GetZone(ctx context.Context, domain string) (sagadomain.Zone, error) {
	name := normalize(domain)
	query := url.Values{"name": {name}}
	if c.accountID != "" {
		query.Set("account.id", c.accountID)
	}

	var resp response[[]zone]
	err := c.http.Do(ctx, provider.Request{
		Op:     "list_zones",
		Method: http.MethodGet,
		Path:   "/zones",
		Query:  query,
	}, &resp)
	if err != nil {
		return sagadomain.Zone{}, err
	}
	if !resp.Success {
		return sagadomain.Zone{}, provider.NewError(provider.CategoryRejected, providerName, "list_zones", firstMessage(resp.Errors), nil)
	}
	for _, z := range resp.Result {
		if strings.EqualFold(z.Name, name) && z.ID != "" {
			return z.toDomain(), nil
		}
	}
	return sagadomain.Zone{}, sagadomain.ErrZoneNotFound
}

func hasCode(err error, code int) bool {
	var perr *provider.Error
	if !errors.As(err, &perr) || len(perr.Body) == 0 {
		return false
	}
	var body response[json.RawMessage]
	if json.Unmarshal(perr.Body, &body) != nil {
		return false
	}
	return containsCode(body.Errors, code)
}

func containsCode(errs []apiError, code int) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func firstMessage(errs []apiError) string {
	if len(errs) == 0 {
		return "request unsuccessful"
	}
	return errs[0].Message
}

func normalize(domain string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
}
