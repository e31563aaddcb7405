package email

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/domainpay/internal/providers/provider"
)

const brevoName = "brevo"

type BrevoConfig struct {
	BaseURL     string
	APIKey      string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
}

type BrevoProvider struct {
	http   *provider.Client
	sender brevoAddress
}

func NewBrevo(cfg BrevoConfig) *BrevoProvider {
	apiKey := strings.TrimSpace(cfg.APIKey)
	return &BrevoProvider{
		http: provider.NewClient(brevoName, cfg.BaseURL, cfg.Timeout, func(req *http.Request) {
			req.Header.Set("api-key", apiKey)
		}),
		sender: brevoAddress{Email: cfg.SenderEmail, Name: cfg.SenderName},
	}
}

func (p *BrevoProvider) Name() string { return brevoName }

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
}

func (p *BrevoProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return provider.NewError(provider.CategoryRejected, brevoName, "send_email", "no recipients", nil)
	}
	to := make([]brevoAddress, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, brevoAddress{Email: addr})
	}
	return p.http.Do(ctx, provider.Request{
		Op:     "send_email",
		Method: http.MethodPost,
		Path:   "/smtp/email",
		Body: brevoRequest{
			Sender:      p.sender,
			To:          to,
			Subject:     msg.Subject,
			HTMLContent: msg.HTML,
			TextContent: msg.Text,
		},
	}, nil)
}
