// Package email sends transactional mail through Brevo, falling back to
// plain SMTP.
package email

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("email_not_configured")

// Message is one outbound mail. HTML is required; Text is the plain
// alternative.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Name() string { return "noop" }

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return ErrNotConfigured
}

// Fallback tries each provider in order and returns the last error when all
// of them fail.
type Fallback struct {
	providers []Provider
}

func NewFallback(providers ...Provider) *Fallback {
	return &Fallback{providers: providers}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Send(ctx context.Context, msg Message) error {
	err := error(ErrNotConfigured)
	for _, p := range f.providers {
		if err = p.Send(ctx, msg); err == nil {
			return nil
		}
	}
	return err
}
