package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	economic "sentinel_bot/internal/modules/economic/service"
)

// StatusProvider answers /status.
type StatusProvider interface {
	Status() economic.Status
}

// Telegram: нотифайер + обработка команды /status.
type Telegram struct {
	bot     *tgbot.BotAPI
	log     *zap.Logger
	limiter *rate.Limiter
	status  StatusProvider

	chats map[int64]struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

type Options struct {
	Token   string
	ChatIDs []int64
	// сообщений в секунду, Telegram режет около 30/с на бота
	RateLimit float64
	// Endpoint overrides the Bot API URL template, tests only.
	Endpoint string
}

func NewTelegram(opts Options, status StatusProvider, log *zap.Logger) (*Telegram, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	b, err := tgbot.NewBotAPIWithAPIEndpoint(opts.Token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}

	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	chats := make(map[int64]struct{}, len(opts.ChatIDs))
	for _, id := range opts.ChatIDs {
		chats[id] = struct{}{}
	}

	log.Info("[TG] authorized", zap.String("bot", b.Self.UserName))
	return &Telegram{
		bot:     b,
		log:     log,
		limiter: rate.NewLimiter(limit, 1),
		status:  status,
		chats:   chats,
	}, nil
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit")
	}
	msg := tgbot.NewMessage(chatID, text)
	msg.ParseMode = tgbot.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrapf(err, "send to %d", chatID)
	}
	return nil
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) error {
	return t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

// Start: long-polling для команд из разрешённых чатов.
func (t *Telegram) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.stopped = make(chan struct{})

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}
	updates := t.bot.GetUpdatesChan(u)

	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, upd)
			}
		}
	}(t.stopped)
}

func (t *Telegram) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.stopped
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	t.bot.StopReceivingUpdates()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.log.Warn("[TG] update loop did not stop in time")
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbot.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil || !m.IsCommand() {
		return
	}
	if _, ok := t.chats[m.Chat.ID]; !ok {
		t.log.Warn("[TG] command from unknown chat", zap.Int64("chat_id", m.Chat.ID))
		return
	}

	switch m.Command() {
	case "status":
		if err := t.Send(ctx, m.Chat.ID, FormatStatus(t.status.Status())); err != nil {
			t.log.Error("[TG] status reply failed", zap.Error(err))
		}
	default:
		_ = t.Send(ctx, m.Chat.ID, "🤷 Unknown command. Try /status")
	}
}

// FormatStatus renders the monitor status as an HTML message.
func FormatStatus(st economic.Status) string {
	var b strings.Builder
	icon := "🟢"
	if !st.Running {
		icon = "⚪️"
	}
	fmt.Fprintf(&b, "%s <b>Economic monitor</b>: %s\n", icon, st.State)
	fmt.Fprintf(&b, "👥 Observers: %d\n", st.Subscribers)
	fmt.Fprintf(&b, "🗂 Processed events: %d\n", st.Processed)
	if st.LastTick.IsZero() {
		b.WriteString("⏱ Last tick: never")
	} else {
		fmt.Fprintf(&b, "⏱ Last tick: %s", st.LastTick.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "\n⚠️ Last error: %s", escapeHTML(st.LastError))
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
