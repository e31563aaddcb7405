package rates

import (
	"github.com/smallbiznis/domainpay/internal/providers/fastforex"
	"go.uber.org/fx"
)

var Module = fx.Module("rates",
	fx.Provide(
		fx.Annotate(fastforex.New, fx.As(new(Source))),
	),
	fx.Provide(NewStore),
	fx.Provide(
		fx.Annotate(NewCachedSource, fx.As(new(Quoter))),
	),
)
