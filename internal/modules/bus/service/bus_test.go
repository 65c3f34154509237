package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"EURUSD.#", "EURUSD.US", true},
		{"EURUSD.#", "EURUSD", true},
		{"EURUSD.#", "EURUSD.US.extra", true},
		{"EURUSD.#", "GBPUSD.US", false},
		{"EURUSD.*", "EURUSD.US", true},
		{"EURUSD.*", "EURUSD", false},
		{"EURUSD.*", "EURUSD.US.extra", false},
		{"*.US", "XAUUSD.US", true},
		{"#.US", "a.b.c.US", true},
		{"#.US", "US", true},
		{"#", "", true},
		{"a.#.z", "a.z", true},
		{"a.#.z", "a.b.c.z", true},
		{"a.#.z", "a.b.c", false},
		{"exact", "exact", true},
		{"exact", "other", false},
	}
	for _, tc := range cases {
		t.Run(tc.pattern+"|"+tc.key, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchTopic(tc.pattern, tc.key))
		})
	}
}

type sink struct {
	mu   sync.Mutex
	keys []string
	msgs []models.QueueMessage
}

func (s *sink) handle(_ context.Context, key string, msg models.QueueMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func TestBusRouting(t *testing.T) {
	b := NewBus("bot", zap.NewNop())
	defer b.Close()
	ctx := context.Background()

	eur, gbp, notif := &sink{}, &sink{}, &sink{}
	_, err := b.Subscribe(ctx, ExchangeEconomicEvents, "EURUSD.#", eur.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, ExchangeEconomicEvents, "GBPUSD.#", gbp.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, ExchangeNotifications, "#", notif.handle)
	require.NoError(t, err)

	msg := models.NewQueueMessage("test", "", map[string]any{"event_id": "E1"}, models.TradingConfiguration{Symbol: "EURUSD", BotName: "bot"})
	require.NoError(t, b.Publish(ctx, ExchangeEconomicEvents, "EURUSD.US", msg))
	require.NoError(t, b.Publish(ctx, ExchangeEconomicEvents, "EURUSD.EU", msg))

	require.Eventually(t, func() bool { return eur.len() == 2 }, time.Second, 5*time.Millisecond)
	eur.mu.Lock()
	assert.Equal(t, []string{"EURUSD.US", "EURUSD.EU"}, eur.keys)
	assert.Equal(t, msg.MessageID, eur.msgs[0].MessageID)
	assert.Equal(t, "E1", eur.msgs[0].GetString("event_id"))
	eur.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, gbp.len())
	assert.Zero(t, notif.len(), "exchanges are isolated")
	assert.Equal(t, "bot_ECONOMIC_EVENTS", b.ExchangeName(ExchangeEconomicEvents))
}

func TestBusHandlerFailuresKeepListener(t *testing.T) {
	b := NewBus("", zap.NewNop())
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	seen := 0
	_, err := b.Subscribe(ctx, ExchangeNotifications, "#", func(_ context.Context, key string, _ models.QueueMessage) error {
		mu.Lock()
		seen++
		n := seen
		mu.Unlock()
		switch n {
		case 1:
			panic("handler bug")
		case 2:
			return errors.New("downstream failed")
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, ExchangeNotifications, "x", models.NewQueueMessage("t", "", nil, models.TradingConfiguration{})))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == 3
	}, time.Second, 5*time.Millisecond)
}

func TestBusUnsubscribeAndClose(t *testing.T) {
	b := NewBus("bot", zap.NewNop())
	ctx := context.Background()

	s := &sink{}
	unsubscribe, err := b.Subscribe(ctx, ExchangeNotifications, "#", s.handle)
	require.NoError(t, err)

	msg := models.NewQueueMessage("t", "", nil, models.TradingConfiguration{})
	require.NoError(t, b.Publish(ctx, ExchangeNotifications, "a", msg))
	require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.cancels) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(ctx, ExchangeNotifications, "a", msg))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.len())

	b.Close()
	assert.ErrorIs(t, b.Publish(ctx, ExchangeNotifications, "a", msg), ErrClosed)
	_, err = b.Subscribe(ctx, ExchangeNotifications, "#", s.handle)
	assert.ErrorIs(t, err, ErrClosed)
}
