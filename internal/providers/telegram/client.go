// Package telegram sends bot messages to user chats.
package telegram

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/providers/provider"
)

const providerName = "telegram"

type Client struct {
	http  *provider.Client
	token string
}

func New(cfg config.Config, policy *config.PolicyHolder) *Client {
	return NewClient(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, policy.Get().Saga.RequestTimeout)
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		http:  provider.NewClient(providerName, baseURL, timeout, nil),
		token: strings.TrimSpace(token),
	}
}

// Enabled reports whether a bot token is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.token != ""
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts a Markdown text message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	var resp apiResponse
	err := c.http.Do(ctx, provider.Request{
		Op:     "send_message",
		Method: http.MethodPost,
		Path:   "/bot" + c.token + "/sendMessage",
		Body: sendMessageRequest{
			ChatID:    strings.TrimSpace(chatID),
			Text:      text,
			ParseMode: "Markdown",
		},
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.OK {
		return provider.NewError(provider.CategoryRejected, providerName, "send_message", resp.Description, nil)
	}
	return nil
}
