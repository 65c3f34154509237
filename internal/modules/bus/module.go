package bus

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"sentinel_bot/internal/modules/bus/service"
	"sentinel_bot/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("bus",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Bus {
				return service.NewBus(cfg.BotName, log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, b *service.Bus) {
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					b.Close()
					return nil
				},
			})
		}),
	)
}
