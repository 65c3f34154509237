package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
	broker "sentinel_bot/internal/modules/broker/service"
	bus "sentinel_bot/internal/modules/bus/service"
	economic "sentinel_bot/internal/modules/economic/service"
	notify "sentinel_bot/internal/modules/telegram_bot/service"
)

// Observers is the registration side of the economic monitor.
type Observers interface {
	RegisterObserver(ctx context.Context, countries []string, b economic.Broker, cb economic.Callback, observerID string, importance models.Importance) error
	UnregisterObserver(ctx context.Context, countries []string, importance models.Importance, observerID string) error
}

type Bus interface {
	Publish(ctx context.Context, exchange, routingKey string, msg models.QueueMessage) error
	Subscribe(ctx context.Context, exchange, pattern string, h bus.Handler) (func(), error)
}

type Config struct {
	BotName        string
	Symbols        []string
	Importance     models.Importance
	ClosePositions bool
	MagicNumber    int64
	ChatIDs        []int64
}

type registration struct {
	symbol    string
	countries []string
	id        string
}

// Agent watches the calendar for its symbols, alerts the chats and optionally
// flattens positions ahead of an event.
type Agent struct {
	id        string
	cfg       Config
	log       *zap.Logger
	observers Observers
	bus       Bus
	broker    broker.Broker
	notifier  notify.Notifier
	now       func() time.Time

	mu            sync.Mutex
	countries     map[string][]string
	registrations []registration
	unsubscribe   []func()
}

func NewAgent(cfg Config, observers Observers, b Bus, br broker.Broker, n notify.Notifier, log *zap.Logger) *Agent {
	if cfg.Importance == 0 {
		cfg.Importance = models.ImportanceHigh
	}
	return &Agent{
		id:        "sentinel-" + uuid.NewString()[:8],
		cfg:       cfg,
		log:       log,
		observers: observers,
		bus:       b,
		broker:    br,
		notifier:  n,
		now:       time.Now,
		countries: make(map[string][]string),
	}
}

func (a *Agent) ID() string { return a.id }

// Start resolves each symbol's countries, listens on the bus and registers observers.
// On failure everything registered so far is rolled back.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		_ = a.Stop(ctx)
		return fmt.Errorf("sentinel.Start: %w", err)
	}
	return nil
}

func (a *Agent) start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, raw := range a.cfg.Symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		countries, err := models.CountriesOfInterest(symbol)
		if err != nil {
			return err
		}
		a.countries[symbol] = countries

		topicPattern := symbol + ".#"
		unsub, err := a.bus.Subscribe(context.Background(), bus.ExchangeEconomicEvents, topicPattern, a.onEconomicEvent)
		if err != nil {
			return errors.Wrapf(err, "listen %s", topicPattern)
		}
		a.unsubscribe = append(a.unsubscribe, unsub)
		a.log.Info("[SENTINEL] listening for economic events", zap.String("topic", topicPattern))

		reg := registration{symbol: symbol, countries: countries, id: a.id + ":" + symbol}
		if err := a.observers.RegisterObserver(ctx, countries, a.broker, a.publisher(symbol), reg.id, a.cfg.Importance); err != nil {
			return err
		}
		a.registrations = append(a.registrations, reg)
	}
	return nil
}

// Stop unregisters every observer and closes the bus listeners.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	regs := a.registrations
	unsubs := a.unsubscribe
	a.registrations, a.unsubscribe = nil, nil
	a.mu.Unlock()

	var firstErr error
	for _, r := range regs {
		if err := a.observers.UnregisterObserver(ctx, r.countries, a.cfg.Importance, r.id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, u := range unsubs {
		u()
	}
	return firstErr
}

// publisher is the observer callback: it forwards the event to the bus as <SYMBOL>.<COUNTRY>.
func (a *Agent) publisher(symbol string) economic.Callback {
	return func(ctx context.Context, ev models.EconomicEvent) error {
		msg := models.NewQueueMessage(a.id, "", eventPayload(ev), models.TradingConfiguration{
			Symbol:  symbol,
			BotName: a.cfg.BotName,
		})
		return a.bus.Publish(ctx, bus.ExchangeEconomicEvents, symbol+"."+ev.Country, msg)
	}
}

func (a *Agent) impactedSymbols(country string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for symbol, countries := range a.countries {
		if slices.Contains(countries, country) {
			out = append(out, symbol)
		}
	}
	slices.Sort(out)
	return out
}

func (a *Agent) onEconomicEvent(ctx context.Context, routingKey string, msg models.QueueMessage) error {
	ev, err := eventFromPayload(msg)
	if err != nil {
		return errors.Wrapf(err, "routing key %s", routingKey)
	}
	symbol := msg.Trading.Symbol
	a.log.Info("[SENTINEL] economic event received",
		zap.String("routing_key", routingKey),
		zap.String("event", ev.Name),
		zap.String("symbol", symbol),
	)

	if !slices.Contains(a.impactedSymbols(ev.Country), symbol) {
		return nil
	}

	a.broadcast(ctx, eventAlert(ev, ev.Time.Sub(a.now())))

	if !a.cfg.ClosePositions {
		return nil
	}
	return a.closePositions(ctx, symbol, ev)
}

func (a *Agent) closePositions(ctx context.Context, symbol string, ev models.EconomicEvent) error {
	positions, err := a.broker.OpenPositions(ctx, symbol)
	if err != nil {
		return errors.Wrapf(err, "open positions %s", symbol)
	}
	if len(positions) == 0 {
		text := noPositionsMessage(ev)
		a.log.Warn("[SENTINEL] nothing to close", zap.String("symbol", symbol), zap.String("event", ev.Name))
		a.broadcast(ctx, text)
		return nil
	}

	for _, pos := range positions {
		res, err := a.broker.ClosePosition(ctx, pos, fmt.Sprintf("'%s'", ev.Name), a.cfg.MagicNumber)
		text := closedMessage(pos, ev)
		if err != nil || !res.Success {
			text = closeFailedMessage(pos, ev)
			a.log.Error("[SENTINEL] close failed",
				zap.Int64("position", pos.PositionID),
				zap.String("server_message", res.ServerMessage),
				zap.Error(err),
			)
		} else {
			a.log.Info("[SENTINEL] position closed", zap.Int64("position", pos.PositionID), zap.Int64("deal", res.Deal))
		}
		a.broadcast(ctx, text)
	}
	return nil
}

func (a *Agent) broadcast(ctx context.Context, text string) {
	if len(a.cfg.ChatIDs) == 0 {
		a.log.Info("[SENTINEL] no chats configured", zap.String("text", text))
		return
	}
	for _, chatID := range a.cfg.ChatIDs {
		if err := a.notifier.Send(ctx, chatID, text); err != nil {
			a.log.Error("[SENTINEL] notify failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}
