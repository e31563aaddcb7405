// Package openprovider is the registrar client.
package openprovider

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

const providerName = "openprovider"

// codeDuplicateDomain is the registrar's "domain already exists" reply.
const codeDuplicateDomain = 346

// Client logs in for every operation and keeps no session between calls.
type Client struct {
	http            *provider.Client
	username        string
	password        string
	registerTimeout time.Duration
}

var _ sagadomain.Registrar = (*Client)(nil)

func New(cfg config.Config, policy *config.PolicyHolder) *Client {
	p := policy.Get()
	return NewClient(cfg.OpenProvider.BaseURL, cfg.OpenProvider.Username, cfg.OpenProvider.Password,
		p.Saga.RequestTimeout, p.Saga.RegisterTimeout)
}

func NewClient(baseURL, username, password string, timeout, registerTimeout time.Duration) *Client {
	return &Client{
		http:            provider.NewClient(providerName, baseURL, timeout, nil),
		username:        strings.TrimSpace(username),
		password:        password,
		registerTimeout: registerTimeout,
	}
}

type envelope[T any] struct {
	Code int    `json:"code"`
	Desc string `json:"desc"`
	Data T      `json:"data"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	var resp envelope[struct {
		Token string `json:"token"`
	}]
	err := c.http.Do(ctx, provider.Request{
		Op:     "login",
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body: map[string]string{
			"username": c.username,
			"password": c.password,
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Code != 0 || resp.Data.Token == "" {
		return "", provider.NewError(provider.CategoryAuthentication, providerName, "login", "no token issued: "+resp.Desc, nil)
	}
	return resp.Data.Token, nil
}

func (c *Client) call(ctx context.Context, req provider.Request, out any, code func() (int, string)) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}
	req.Header = http.Header{"Authorization": {"Bearer " + token}}
	if err := c.http.Do(ctx, req, out); err != nil {
		return err
	}
	if n, desc := code(); n != 0 {
		perr := provider.NewError(provider.CategoryRejected, providerName, req.Op, desc, nil)
		perr.StatusCode = http.StatusOK
		return perr
	}
	return nil
}

type customerName struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Initials  string `json:"initials,omitempty"`
}

type customerAddress struct {
	Street  string `json:"street"`
	Number  string `json:"number"`
	Zipcode string `json:"zipcode"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Country string `json:"country"`
}

type customerPhone struct {
	CountryCode      string `json:"country_code"`
	AreaCode         string `json:"area_code"`
	SubscriberNumber string `json:"subscriber_number"`
}

type customerRequest struct {
	Name    customerName    `json:"name"`
	Address customerAddress `json:"address"`
	Phone   customerPhone   `json:"phone"`
	Email   string          `json:"email"`
	Locale  string          `json:"locale"`
}

func (c *Client) CreateContact(ctx context.Context, identity sagadomain.ContactIdentity) (string, error) {
	if strings.TrimSpace(identity.Email) == "" {
		return "", provider.NewError(provider.CategoryRejected, providerName, "create_customer", "contact email is required", nil)
	}

	var resp envelope[struct {
		Handle string `json:"handle"`
	}]
	err := c.call(ctx, provider.Request{
		Op:     "create_customer",
		Method: http.MethodPost,
		Path:   "/customers",
		Body: customerRequest{
			Name: customerName{
				FirstName: identity.FirstName,
				LastName:  identity.LastName,
				Initials:  initials(identity.FirstName, identity.LastName),
			},
			Address: customerAddress{
				Street:  identity.Street,
				Number:  identity.HouseNumber,
				Zipcode: identity.Zipcode,
				City:    identity.City,
				State:   identity.State,
				Country: identity.Country,
			},
			Phone: customerPhone{
				CountryCode:      identity.PhoneCode,
				AreaCode:         identity.PhoneArea,
				SubscriberNumber: identity.PhoneNumber,
			},
			Email:  identity.Email,
			Locale: "en_US",
		},
	}, &resp, func() (int, string) { return resp.Code, resp.Desc })
	if err != nil {
		return "", err
	}
	if resp.Data.Handle == "" {
		return "", provider.NewError(provider.CategoryBadData, providerName, "create_customer", "no handle returned", nil)
	}
	return resp.Data.Handle, nil
}

type domainName struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

type nameserver struct {
	Name string `json:"name"`
}

type registerRequest struct {
	Domain                domainName   `json:"domain"`
	Period                int          `json:"period"`
	OwnerHandle           string       `json:"owner_handle"`
	AdminHandle           string       `json:"admin_handle"`
	TechHandle            string       `json:"tech_handle"`
	BillingHandle         string       `json:"billing_handle"`
	Nameservers           []nameserver `json:"name_servers"`
	IsPrivateWhoisEnabled bool         `json:"is_private_whois_enabled"`
}

// RegisterDomain returns sagadomain.ErrDuplicateRegistration when the
// registrar reports the name as taken, wrapped around the provider error.
func (c *Client) RegisterDomain(ctx context.Context, reg sagadomain.Registration) (string, error) {
	name, ext, err := splitDomain(reg.DomainName)
	if err != nil {
		return "", err
	}
	years := reg.Years
	if years <= 0 {
		years = 1
	}
	servers := make([]nameserver, 0, len(reg.Nameservers))
	for _, ns := range reg.Nameservers {
		servers = append(servers, nameserver{Name: ns})
	}

	var resp envelope[struct {
		ID json.Number `json:"id"`
	}]
	err = c.call(ctx, provider.Request{
		Op:      "create_domain",
		Method:  http.MethodPost,
		Path:    "/domains",
		Timeout: c.registerTimeout,
		Body: registerRequest{
			Domain:                domainName{Name: name, Extension: ext},
			Period:                years,
			OwnerHandle:           reg.ContactHandle,
			AdminHandle:           reg.ContactHandle,
			TechHandle:            reg.ContactHandle,
			BillingHandle:         reg.ContactHandle,
			Nameservers:           servers,
			IsPrivateWhoisEnabled: reg.PrivateWhois,
		},
	}, &resp, func() (int, string) { return resp.Code, resp.Desc })
	if err != nil {
		if isDuplicate(err, resp.Code, resp.Desc) {
			return "", errors.Join(sagadomain.ErrDuplicateRegistration, err)
		}
		return "", err
	}
	if resp.Data.ID.String() == "" {
		return "", provider.NewError(provider.CategoryBadData, providerName, "create_domain", "no domain id returned", nil)
	}
	return resp.Data.ID.String(), nil
}

// FindDomain looks the domain up in this reseller account.
func (c *Client) FindDomain(ctx context.Context, fullName string) (string, error) {
	var resp envelope[struct {
		Results []struct {
			ID     json.Number `json:"id"`
			Domain domainName  `json:"domain"`
		} `json:"results"`
	}]
	err := c.call(ctx, provider.Request{
		Op:     "search_domain",
		Method: http.MethodGet,
		Path:   "/domains",
		Query:  url.Values{"full_name": {fullName}},
	}, &resp, func() (int, string) { return resp.Code, resp.Desc })
	if err != nil {
		return "", err
	}
	for _, item := range resp.Data.Results {
		full := item.Domain.Name + "." + item.Domain.Extension
		if item.Domain.Name != "" && !strings.EqualFold(full, fullName) {
			continue
		}
		if id := item.ID.String(); id != "" {
			return id, nil
		}
	}
	return "", sagadomain.ErrRegistrarDomainAbsent
}

func isDuplicate(err error, code int, desc string) bool {
	if code == codeDuplicateDomain || mentionsDuplicate(desc) {
		return true
	}
	var perr *provider.Error
	if errors.As(err, &perr) && len(perr.Body) > 0 {
		var body envelope[json.RawMessage]
		if json.Unmarshal(perr.Body, &body) == nil && body.Code == codeDuplicateDomain {
			return true
		}
		return mentionsDuplicate(string(perr.Body))
	}
	return false
}

func mentionsDuplicate(text string) bool {
	text = strings.ToLower(text)
	return strings.Contains(text, "duplicate") || strings.Contains(text, "already exists")
}

func splitDomain(full string) (string, string, error) {
	full = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(full), "."))
	idx := strings.Index(full, ".")
	if idx <= 0 || idx == len(full)-1 {
		return "", "", provider.NewError(provider.CategoryRejected, providerName, "create_domain", "invalid domain "+full, nil)
	}
	return full[:idx], full[idx+1:], nil
}

func initials(first, last string) string {
	var parts []string
	for _, s := range []string{first, last} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, strings.ToUpper(s[:1]))
		}
	}
	return strings.Join(parts, " ")
}
