package email

import (
	"github.com/smallbiznis/domainpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig prefers Brevo and keeps SMTP as the fallback when both are
// configured.
func NewFromConfig(cfg config.Config, policy *config.PolicyHolder, log *zap.Logger) Provider {
	var chain []Provider
	if cfg.Email.BrevoAPIKey != "" {
		chain = append(chain, NewBrevo(BrevoConfig{
			BaseURL:     cfg.Email.BrevoBaseURL,
			APIKey:      cfg.Email.BrevoAPIKey,
			SenderEmail: cfg.Email.SenderEmail,
			SenderName:  cfg.Email.SenderName,
			Timeout:     policy.Get().Saga.RequestTimeout,
		}))
	}
	if cfg.Email.SMTPHost != "" {
		chain = append(chain, NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.SenderEmail,
		}))
	}

	switch len(chain) {
	case 0:
		log.Named("providers.email").Warn("no email provider configured, email notifications disabled")
		return &NoOpProvider{}
	case 1:
		return chain[0]
	default:
		return NewFallback(chain...)
	}
}
