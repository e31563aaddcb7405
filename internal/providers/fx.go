package providers

import (
	"github.com/smallbiznis/domainpay/internal/providers/cloudflare"
	"github.com/smallbiznis/domainpay/internal/providers/email"
	"github.com/smallbiznis/domainpay/internal/providers/openprovider"
	"github.com/smallbiznis/domainpay/internal/providers/slack"
	"github.com/smallbiznis/domainpay/internal/providers/telegram"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	"go.uber.org/fx"
)

// Module wires the outbound collaborators. The rate source is provided by
// the rates module.
var Module = fx.Module("providers",
	email.Module,
	fx.Provide(
		telegram.New,
		slack.New,
		fx.Annotate(openprovider.New, fx.As(new(sagadomain.Registrar))),
		fx.Annotate(cloudflare.New, fx.As(new(sagadomain.DNSHost))),
	),
)
