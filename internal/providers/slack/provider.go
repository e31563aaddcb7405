// Package slack posts operator alerts to an incoming webhook.
package slack

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/providers/provider"
)

var ErrNotConfigured = errors.New("slack_not_configured")

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return ErrNotConfigured
}

// WebhookProvider posts to a Slack incoming webhook URL.
type WebhookProvider struct {
	http *provider.Client
}

func New(cfg config.Config, policy *config.PolicyHolder) Provider {
	url := strings.TrimSpace(cfg.Slack.WebhookURL)
	if url == "" {
		return &NoOpProvider{}
	}
	return NewWebhook(url, policy.Get().Saga.RequestTimeout)
}

func NewWebhook(webhookURL string, timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{http: provider.NewClient("slack", webhookURL, timeout, nil)}
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return p.http.Do(ctx, provider.Request{
		Op:     "post_message",
		Method: http.MethodPost,
		Body:   webhookPayload{Channel: channelID, Text: message},
	}, nil)
}
