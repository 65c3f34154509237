package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Notifier доставляет текст в чат.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendF(ctx context.Context, chatID int64, format string, args ...any) error
}

// Stdout: заглушка без токена: всё уходит в лог.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout { return &Stdout{log: log} }

func (s *Stdout) Send(_ context.Context, chatID int64, text string) error {
	s.log.Info("[TG] stdout", zap.Int64("chat_id", chatID), zap.String("text", text))
	return nil
}

func (s *Stdout) SendF(ctx context.Context, chatID int64, format string, args ...any) error {
	return s.Send(ctx, chatID, fmt.Sprintf(format, args...))
}
