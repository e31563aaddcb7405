package domains

import (
	"github.com/smallbiznis/domainpay/internal/domains/repository"
	"github.com/smallbiznis/domainpay/internal/domains/service"
	"go.uber.org/fx"
)

var Module = fx.Module("domains.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
