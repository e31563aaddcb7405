package payment

import (
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/payment/adapters"
	"github.com/smallbiznis/domainpay/internal/payment/adapters/blockbee"
	"github.com/smallbiznis/domainpay/internal/payment/adapters/generic"
	"github.com/smallbiznis/domainpay/internal/payment/idempotency"
	"github.com/smallbiznis/domainpay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/domainpay/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(idempotency.NewGuard),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			generic.New(cfg.Generic.WebhookSecret),
			blockbee.New(cfg.BlockBee.WebhookSecret),
		)
	}),
	fx.Provide(paymentservice.NewService),
)
