package notification

import (
	"context"
	"strings"

	"github.com/smallbiznis/domainpay/internal/notification/domain"
	"github.com/smallbiznis/domainpay/internal/providers/email"
	"github.com/smallbiznis/domainpay/internal/providers/telegram"
)

// TelegramChannel messages the owner's chat.
type TelegramChannel struct {
	client *telegram.Client
}

func NewTelegramChannel(client *telegram.Client) *TelegramChannel {
	return &TelegramChannel{client: client}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, recipient domain.Recipient, msg domain.Message) error {
	if !c.client.Enabled() {
		return domain.ErrChannelDisabled
	}
	if strings.TrimSpace(recipient.ChatID) == "" {
		return domain.ErrNoRecipient
	}
	return c.client.SendMessage(ctx, recipient.ChatID, msg.Text)
}

// EmailChannel mails the contact address from the order payload.
type EmailChannel struct {
	provider email.Provider
}

func NewEmailChannel(provider email.Provider) *EmailChannel {
	return &EmailChannel{provider: provider}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, recipient domain.Recipient, msg domain.Message) error {
	if _, ok := c.provider.(*email.NoOpProvider); ok {
		return domain.ErrChannelDisabled
	}
	if strings.TrimSpace(recipient.Email) == "" {
		return domain.ErrNoRecipient
	}
	return c.provider.Send(ctx, email.Message{
		To:      []string{recipient.Email},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
}
