package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"sentinel_bot/internal/modules/config"
	economic "sentinel_bot/internal/modules/economic/service"
	"sentinel_bot/internal/modules/telegram_bot/service"
)

// NewNotifier returns the Telegram client, or the stdout stub when no token is set.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, m *economic.Manager, log *zap.Logger) (service.Notifier, error) {
	if cfg.Telegram.Token == "" {
		log.Warn("[TG] no token configured, notifications go to stdout")
		return service.NewStdout(log), nil
	}

	t, err := service.NewTelegram(service.Options{
		Token:     cfg.Telegram.Token,
		ChatIDs:   cfg.Telegram.ChatIDs,
		RateLimit: cfg.Telegram.RateLimit,
	}, m, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			t.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			t.Stop()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(NewNotifier),
	)
}
