package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
	broker "sentinel_bot/internal/modules/broker/service"
	bus "sentinel_bot/internal/modules/bus/service"
	economic "sentinel_bot/internal/modules/economic/service"
)

type observerCall struct {
	countries  []string
	id         string
	importance models.Importance
	cb         economic.Callback
}

type fakeObservers struct {
	mu           sync.Mutex
	registered   map[string]observerCall
	unregistered []string
}

func newFakeObservers() *fakeObservers {
	return &fakeObservers{registered: make(map[string]observerCall)}
}

func (f *fakeObservers) RegisterObserver(_ context.Context, countries []string, _ economic.Broker, cb economic.Callback, id string, imp models.Importance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[id] = observerCall{countries: countries, id: id, importance: imp, cb: cb}
	return nil
}

func (f *fakeObservers) UnregisterObserver(_ context.Context, _ []string, _ models.Importance, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, id)
	delete(f.registered, id)
	return nil
}

func (f *fakeObservers) get(id string) (observerCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.registered[id]
	return c, ok
}

type chatMessage struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []chatMessage
}

func (n *recordingNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, chatMessage{chatID, text})
	return nil
}

func (n *recordingNotifier) SendF(ctx context.Context, chatID int64, format string, args ...any) error {
	return errors.New("not used")
}

func (n *recordingNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs {
		out = append(out, m.text)
	}
	return out
}

var now = time.Date(2026, 3, 6, 13, 28, 0, 0, time.UTC)

func nfp() models.EconomicEvent {
	return models.EconomicEvent{
		ID:         "101",
		Name:       "Non-Farm Payrolls",
		Country:    "US",
		Currency:   "USD",
		Importance: models.ImportanceHigh,
		Time:       now.Add(2*time.Minute + 30*time.Second),
	}
}

type fixture struct {
	agent     *Agent
	observers *fakeObservers
	notifier  *recordingNotifier
	paper     *broker.Paper
	bus       *bus.Bus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		observers: newFakeObservers(),
		notifier:  &recordingNotifier{},
		paper:     broker.NewPaper(".", 0, zap.NewNop()),
		bus:       bus.NewBus("test", zap.NewNop()),
	}
	t.Cleanup(f.bus.Close)
	f.agent = NewAgent(cfg, f.observers, f.bus, f.paper, f.notifier, zap.NewNop())
	f.agent.now = func() time.Time { return now }
	return f
}

func TestAgentRegistersPerSymbol(t *testing.T) {
	f := newFixture(t, Config{Symbols: []string{"eurusd", "XAUUSD"}})
	ctx := context.Background()
	require.NoError(t, f.agent.Start(ctx))

	eur, ok := f.observers.get(f.agent.ID() + ":EURUSD")
	require.True(t, ok)
	assert.Equal(t, []string{"EU", "DE", "FR", "IT", "ES", "US"}, eur.countries)
	assert.Equal(t, models.ImportanceHigh, eur.importance)

	xau, ok := f.observers.get(f.agent.ID() + ":XAUUSD")
	require.True(t, ok)
	assert.Equal(t, []string{"US"}, xau.countries)

	require.NoError(t, f.agent.Stop(ctx))
	assert.ElementsMatch(t, []string{f.agent.ID() + ":EURUSD", f.agent.ID() + ":XAUUSD"}, f.observers.unregistered)
}

func TestAgentStartRollsBackOnUnknownSymbol(t *testing.T) {
	f := newFixture(t, Config{Symbols: []string{"EURUSD", "BTC"}})
	err := f.agent.Start(context.Background())
	require.ErrorIs(t, err, models.ErrUnknownSymbol)
	assert.Equal(t, []string{f.agent.ID() + ":EURUSD"}, f.observers.unregistered)
}

func TestAgentAlertsAndClosesPositions(t *testing.T) {
	f := newFixture(t, Config{
		BotName:        "test",
		Symbols:        []string{"EURUSD"},
		ClosePositions: true,
		MagicNumber:    42,
		ChatIDs:        []int64{100, 200},
	})
	ctx := context.Background()
	pos := f.paper.Open("EURUSD", models.SideBuy, decimal.RequireFromString("0.1"), decimal.RequireFromString("1.08"), 42)
	f.paper.Open("GBPUSD", models.SideBuy, decimal.RequireFromString("0.1"), decimal.RequireFromString("1.27"), 42)
	require.NoError(t, f.agent.Start(ctx))

	obs, ok := f.observers.get(f.agent.ID() + ":EURUSD")
	require.True(t, ok)
	require.NoError(t, obs.cb(ctx, nfp()))

	require.Eventually(t, func() bool { return len(f.notifier.texts()) == 4 }, 2*time.Second, 5*time.Millisecond)
	texts := f.notifier.texts()
	assert.Equal(t, "📰🔔 Economic event <b>Non-Farm Payrolls</b> is scheduled to occur in 2 minutes and 30 seconds.\n", texts[0])
	assert.Equal(t, texts[0], texts[1])
	assert.Contains(t, texts[2], "✅ Position 1 closed successfully due to the economic event <b>Non-Farm Payrolls</b>.")

	closed := f.paper.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, pos.PositionID, closed[0].Position.PositionID)
	assert.Equal(t, "'Non-Farm Payrolls'", closed[0].Comment)
	assert.EqualValues(t, 42, closed[0].Magic)

	left, err := f.paper.OpenPositions(ctx, "GBPUSD")
	require.NoError(t, err)
	assert.Len(t, left, 1, "other symbols are untouched")
}

func TestAgentNoPositions(t *testing.T) {
	f := newFixture(t, Config{Symbols: []string{"EURUSD"}, ClosePositions: true, ChatIDs: []int64{100}})
	ctx := context.Background()
	require.NoError(t, f.agent.Start(ctx))

	obs, _ := f.observers.get(f.agent.ID() + ":EURUSD")
	require.NoError(t, obs.cb(ctx, nfp()))

	require.Eventually(t, func() bool { return len(f.notifier.texts()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t,
		"ℹ️ No open positions found for forced closure due to the economic event <b>Non-Farm Payrolls</b>.",
		f.notifier.texts()[1],
	)
}

func TestAgentAlertOnlyByDefault(t *testing.T) {
	f := newFixture(t, Config{Symbols: []string{"EURUSD"}, ChatIDs: []int64{100}})
	ctx := context.Background()
	f.paper.Open("EURUSD", models.SideSell, decimal.RequireFromString("1"), decimal.RequireFromString("1.1"), 0)
	require.NoError(t, f.agent.Start(ctx))

	obs, _ := f.observers.get(f.agent.ID() + ":EURUSD")
	require.NoError(t, obs.cb(ctx, nfp()))

	require.Eventually(t, func() bool { return len(f.notifier.texts()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.notifier.texts(), 1)
	assert.Empty(t, f.paper.Closed())
}

func TestWhenString(t *testing.T) {
	cases := map[time.Duration]string{
		0:                              "now.",
		-5 * time.Second:               "now.",
		3 * time.Minute:                "in 3 minutes.",
		2*time.Minute + 30*time.Second: "in 2 minutes and 30 seconds.",
		45 * time.Second:               "in 0 minutes and 45 seconds.",
		4*time.Minute + 59*time.Second: "in 4 minutes and 59 seconds.",
	}
	for left, want := range cases {
		assert.Equal(t, want, whenString(left), left.String())
	}
}

func TestEventPayloadRoundTrip(t *testing.T) {
	ev := nfp()
	ev.SecondsUntil = 150
	msg := models.NewQueueMessage("a", "", eventPayload(ev), models.TradingConfiguration{Symbol: "EURUSD"})
	data, err := msg.ToJSON()
	require.NoError(t, err)
	decoded, err := models.QueueMessageFromJSON(data)
	require.NoError(t, err)

	got, err := eventFromPayload(decoded)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Importance, got.Importance)
	assert.True(t, ev.Time.Equal(got.Time))
	assert.InDelta(t, 150, got.SecondsUntil, 1e-9)

	_, err = eventFromPayload(models.QueueMessage{Payload: map[string]any{"event_time": "bad"}})
	assert.Error(t, err)
}
