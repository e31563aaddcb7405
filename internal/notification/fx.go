package notification

import (
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	"github.com/smallbiznis/domainpay/internal/providers/email"
	"github.com/smallbiznis/domainpay/internal/providers/slack"
	"github.com/smallbiznis/domainpay/internal/providers/telegram"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Log        *zap.Logger
	Config     config.Config
	Telegram   *telegram.Client
	Email      email.Provider
	Slack      slack.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func Provide(p Params) (*Dispatcher, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	d := NewDispatcher(p.Log, renderer,
		[]domain.Channel{NewTelegramChannel(p.Telegram), NewEmailChannel(p.Email)},
		p.Slack,
		Options{AlertChannel: p.Config.Slack.Channel},
		p.ObsMetrics,
	)
	p.Lifecycle.Append(fx.Hook{OnStart: d.Start, OnStop: d.Stop})
	return d, nil
}

var Module = fx.Module("notification",
	fx.Provide(Provide),
	fx.Provide(func(d *Dispatcher) domain.Notifier { return d }),
	fx.Provide(func(d *Dispatcher) domain.Alerter { return d }),
)
