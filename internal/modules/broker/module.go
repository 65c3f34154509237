package broker

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sentinel_bot/internal/modules/broker/service"
	"sentinel_bot/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Paper {
				return service.NewPaper(cfg.Broker.WorkingDir, cfg.Broker.TimezoneOffset, log)
			},
			func(p *service.Paper) service.Broker { return p },
		),
	)
}
