package runner

import (
	"context"

	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/lock"
	"github.com/smallbiznis/domainpay/internal/saga/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Saga      domain.Service
	Locker    lock.Locker
	Policy    *config.PolicyHolder
}

func Provide(p Params) *Runner {
	r := NewRunner(p.Log, p.Saga, p.Locker, p.Policy)
	runCtx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			defer cancel()
			return r.Stop(ctx)
		},
	})
	return r
}
