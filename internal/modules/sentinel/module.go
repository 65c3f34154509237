package sentinel

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
	broker "sentinel_bot/internal/modules/broker/service"
	bus "sentinel_bot/internal/modules/bus/service"
	"sentinel_bot/internal/modules/config"
	economic "sentinel_bot/internal/modules/economic/service"
	"sentinel_bot/internal/modules/sentinel/service"
	notify "sentinel_bot/internal/modules/telegram_bot/service"
)

func NewAgent(
	cfg *config.Config,
	m *economic.Manager,
	b *bus.Bus,
	br broker.Broker,
	n notify.Notifier,
	log *zap.Logger,
) *service.Agent {
	return service.NewAgent(service.Config{
		BotName:        cfg.BotName,
		Symbols:        cfg.Sentinel.Symbols,
		Importance:     models.Importance(cfg.Sentinel.Importance),
		ClosePositions: cfg.Sentinel.ClosePositionsOnEvent,
		MagicNumber:    cfg.Broker.MagicNumber,
		ChatIDs:        cfg.Telegram.ChatIDs,
	}, m, b, br, n, log)
}

func Module() fx.Option {
	return fx.Module("sentinel",
		fx.Provide(NewAgent),
		fx.Invoke(func(lc fx.Lifecycle, a *service.Agent) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return a.Start(ctx)
				},
				OnStop: func(ctx context.Context) error {
					return a.Stop(ctx)
				},
			})
		}),
	)
}
