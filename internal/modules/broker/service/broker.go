package service

import (
	"context"

	"sentinel_bot/internal/models"
)

// Broker is the trading terminal as seen by the bot.
type Broker interface {
	WorkingDirectory(ctx context.Context) (string, error)
	TimezoneOffset(ctx context.Context, symbol string) (float64, error)
	OpenPositions(ctx context.Context, symbol string) ([]models.BrokerPosition, error)
	ClosePosition(ctx context.Context, position models.BrokerPosition, comment string, magic int64) (models.RequestResult, error)
}
