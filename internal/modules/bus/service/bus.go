package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/visvasity/topic"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
)

// Биржи (exchanges) шины.
const (
	ExchangeEconomicEvents = "ECONOMIC_EVENTS"
	ExchangeNotifications  = "NOTIFICATIONS"
)

var ErrClosed = errors.New("bus closed")

// Handler processes one delivered message. An error is logged, the listener keeps going.
type Handler func(ctx context.Context, routingKey string, msg models.QueueMessage) error

type envelope struct {
	RoutingKey string
	Body       []byte
}

// Bus is an in-process topic exchange. Every exchange is one topic; subscribers
// filter by routing key pattern.
type Bus struct {
	log    *zap.Logger
	prefix string

	mu        sync.Mutex
	closed    bool
	exchanges map[string]*topic.Topic[envelope]
	cancels   map[int]context.CancelFunc
	nextID    int

	wg sync.WaitGroup
}

func NewBus(botName string, log *zap.Logger) *Bus {
	return &Bus{
		log:       log,
		prefix:    botName,
		exchanges: make(map[string]*topic.Topic[envelope]),
		cancels:   make(map[int]context.CancelFunc),
	}
}

// ExchangeName is the bot-scoped name an exchange is kept under.
func (b *Bus) ExchangeName(exchange string) string {
	if b.prefix == "" {
		return exchange
	}
	return b.prefix + "_" + exchange
}

func (b *Bus) exchange(name string) (*topic.Topic[envelope], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	full := b.ExchangeName(name)
	t, ok := b.exchanges[full]
	if !ok {
		t = topic.New[envelope]()
		b.exchanges[full] = t
	}
	return t, nil
}

// Publish serialises msg and sends it to every subscriber of exchange.
func (b *Bus) Publish(ctx context.Context, exchange, routingKey string, msg models.QueueMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := b.exchange(exchange)
	if err != nil {
		return err
	}
	body, err := msg.ToJSON()
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	t.Send(envelope{RoutingKey: routingKey, Body: body})
	b.log.Debug("[BUS] published",
		zap.String("exchange", b.ExchangeName(exchange)),
		zap.String("routing_key", routingKey),
		zap.String("message_id", msg.MessageID),
	)
	return nil
}

// Subscribe starts a listener for messages on exchange whose routing key matches
// pattern. The returned func (or ctx cancellation) stops it.
func (b *Bus) Subscribe(ctx context.Context, exchange, pattern string, h Handler) (func(), error) {
	t, err := b.exchange(exchange)
	if err != nil {
		return nil, err
	}
	receiver, err := topic.Subscribe(t, 0, false)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", exchange)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()

	stopf := context.AfterFunc(ctx, receiver.Close)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			delete(b.cancels, id)
			b.mu.Unlock()
		}()
		defer stopf()
		defer receiver.Close()

		for ctx.Err() == nil {
			env, err := receiver.Receive()
			if err != nil {
				if ctx.Err() == nil {
					b.log.Warn("[BUS] receive failed, listener stopped", zap.String("exchange", exchange), zap.Error(err))
				}
				return
			}
			if !MatchTopic(pattern, env.RoutingKey) {
				continue
			}
			b.deliver(ctx, exchange, env, h)
		}
	}()

	b.log.Info("[BUS] listening",
		zap.String("exchange", b.ExchangeName(exchange)),
		zap.String("pattern", pattern),
	)
	return cancel, nil
}

func (b *Bus) deliver(ctx context.Context, exchange string, env envelope, h Handler) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("[BUS] handler panic",
				zap.String("exchange", exchange),
				zap.String("routing_key", env.RoutingKey),
				zap.String("panic", fmt.Sprint(p)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	msg, err := models.QueueMessageFromJSON(env.Body)
	if err != nil {
		b.log.Error("[BUS] bad message", zap.String("routing_key", env.RoutingKey), zap.Error(err))
		return
	}
	if err := h(ctx, env.RoutingKey, msg); err != nil {
		b.log.Error("[BUS] handler failed",
			zap.String("exchange", exchange),
			zap.String("routing_key", env.RoutingKey),
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
}

// Close stops every listener and waits for in-flight handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	cancels := make([]context.CancelFunc, 0, len(b.cancels))
	for _, c := range b.cancels {
		cancels = append(cancels, c)
	}
	b.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	b.wg.Wait()
}
