package saga

import (
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	"github.com/smallbiznis/domainpay/internal/saga/domain"
	"github.com/smallbiznis/domainpay/internal/saga/repository"
	"github.com/smallbiznis/domainpay/internal/saga/runner"
	"github.com/smallbiznis/domainpay/internal/saga/service"
	"go.uber.org/fx"
)

var Module = fx.Module("saga.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(service.NewService, fx.As(new(domain.Service))),
	),
	fx.Provide(runner.Provide),
	fx.Provide(func(r *runner.Runner) paymentdomain.SagaLauncher { return r }),
)
