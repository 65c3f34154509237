package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"sentinel_bot/internal/modules/broker"
	"sentinel_bot/internal/modules/bus"
	"sentinel_bot/internal/modules/config"
	"sentinel_bot/internal/modules/economic"
	"sentinel_bot/internal/modules/health"
	"sentinel_bot/internal/modules/postgres"
	"sentinel_bot/internal/modules/sentinel"
	telegram "sentinel_bot/internal/modules/telegram_bot"
	"sentinel_bot/pkg/logger"
	"sentinel_bot/pkg/tracing"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.BotName)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	tracing.SetServiceName(cfg.BotName)
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}

func main() {
	app := fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		config.Module(),
		fx.Provide(newLogger),
		fx.Invoke(initTracing),
		health.Module(),
		postgres.Module(),
		bus.Module(),
		broker.Module(),
		economic.Module(),
		telegram.Module(),
		sentinel.Module(),
		fx.Invoke(health.MarkReady),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
