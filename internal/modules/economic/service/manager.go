package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
)

// State of the monitor loop.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Options struct {
	Interval        time.Duration
	Backoff         time.Duration
	Retention       time.Duration
	ReferenceSymbol string
	MaxConcurrency  int
	// 0: без таймаута на колбэк
	CallbackTimeout time.Duration

	// Now overrides the clock, tests only.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.Backoff <= 0 {
		o.Backoff = 5 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 24 * time.Hour
	}
	if o.ReferenceSymbol == "" {
		o.ReferenceSymbol = "EURUSD"
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 16
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Status is a point-in-time view of the monitor.
type Status struct {
	State       State     `json:"state"`
	Running     bool      `json:"running"`
	Subscribers int       `json:"subscribers"`
	Processed   int       `json:"processed"`
	LastTick    time.Time `json:"last_tick"`
	LastError   string    `json:"last_error,omitempty"`
}

// Manager owns the observer registry, the dedup window and the monitor loop.
// The loop runs while at least one observer is registered.
type Manager struct {
	opts     Options
	log      *zap.Logger
	source   EventSource
	registry *Registry
	dedup    *Dedup
	metrics  *Metrics
	journal  Journal

	stateMu sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	restart bool
	broker  Broker
	tzHours *float64

	lastTick atomic.Int64
	lastErr  atomic.Pointer[string]

	starts atomic.Int64
	stops  atomic.Int64
}

func NewManager(source EventSource, log *zap.Logger, metrics *Metrics, journal Journal, opts Options) *Manager {
	opts.setDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &Manager{
		opts:     opts,
		log:      log,
		source:   source,
		registry: NewRegistry(),
		dedup:    NewDedup(opts.Retention),
		metrics:  metrics,
		journal:  journal,
	}
}

// RegisterObserver subscribes observerID to events of the given countries whose
// importance is at or below importance (0 means 3). The first registration binds
// broker and starts the loop. Registering the same id again replaces its callback.
func (m *Manager) RegisterObserver(
	ctx context.Context,
	countries []string,
	broker Broker,
	callback Callback,
	observerID string,
	importance models.Importance,
) error {
	if importance == 0 {
		importance = models.ImportanceHigh
	}
	switch {
	case len(countries) == 0:
		return errors.Wrap(ErrInvalidObserver, "no countries")
	case observerID == "":
		return errors.Wrap(ErrInvalidObserver, "empty observer id")
	case callback == nil:
		return errors.Wrap(ErrInvalidObserver, "nil callback")
	case !importance.Valid():
		return errors.Wrapf(ErrInvalidObserver, "importance %d", importance)
	}

	m.registry.Register(countries, importance, observerID, callback)
	m.metrics.subscribers.Set(float64(m.registry.Len()))
	m.log.Info("[ECON] observer registered",
		zap.String("observer", observerID),
		zap.Strings("countries", countries),
		zap.Stringer("importance", importance),
	)

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.broker == nil && broker != nil {
		m.broker = broker
		if b, ok := m.source.(BrokerBinder); ok {
			b.BindBroker(broker)
		}
	}
	m.startLocked()
	return nil
}

// UnregisterObserver removes observerID from the given countries. The loop stops once
// the registry is empty. Unknown ids are ignored.
func (m *Manager) UnregisterObserver(ctx context.Context, countries []string, importance models.Importance, observerID string) error {
	if importance == 0 {
		importance = models.ImportanceHigh
	}
	empty := m.registry.Unregister(countries, importance, observerID)
	m.metrics.subscribers.Set(float64(m.registry.Len()))
	m.log.Info("[ECON] observer unregistered",
		zap.String("observer", observerID),
		zap.Strings("countries", countries),
	)
	if !empty {
		return nil
	}

	m.stateMu.Lock()
	var done <-chan struct{}
	if m.registry.Len() == 0 {
		done = m.beginStopLocked()
	}
	m.stateMu.Unlock()
	return m.awaitStop(ctx, done)
}

// Start launches the loop if it is not running. Concurrent calls collapse into one start.
func (m *Manager) Start() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.startLocked()
}

// Stop cancels the loop and waits for it to exit. The dispatch batch in flight is
// allowed to finish. Called from inside a callback it returns without waiting.
func (m *Manager) Stop(ctx context.Context) error {
	m.stateMu.Lock()
	done := m.beginStopLocked()
	m.stateMu.Unlock()
	return m.awaitStop(ctx, done)
}

// Shutdown stops the loop and forgets every observer and all dedup state.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.Stop(ctx)
	m.registry.Clear()
	m.dedup.Reset()
	m.metrics.subscribers.Set(0)
	m.metrics.processed.Set(0)
	m.log.Info("[ECON] monitor shut down")
	return err
}

func (m *Manager) Status() Status {
	m.stateMu.Lock()
	state := m.state
	m.stateMu.Unlock()

	st := Status{
		State:       state,
		Running:     state == StateRunning,
		Subscribers: m.registry.Len(),
		Processed:   m.dedup.ProcessedLen(),
	}
	if ns := m.lastTick.Load(); ns != 0 {
		st.LastTick = time.Unix(0, ns).UTC()
	}
	if e := m.lastErr.Load(); e != nil {
		st.LastError = *e
	}
	return st
}

func (m *Manager) Registry() *Registry { return m.registry }
func (m *Manager) Dedup() *Dedup       { return m.dedup }

func (m *Manager) startLocked() {
	switch m.state {
	case StateStarting, StateRunning:
		return
	case StateStopping:
		// старый цикл ещё выходит, перезапустимся из его defer
		m.restart = true
		return
	}
	if m.registry.Len() == 0 {
		return
	}

	m.state = StateStarting
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.starts.Add(1)
	go m.run(ctx, done)
	m.state = StateRunning
	m.log.Info("[ECON] monitor started", zap.Duration("interval", m.opts.Interval))
}

// beginStopLocked moves RUNNING to STOPPING and returns the channel closed on loop exit.
func (m *Manager) beginStopLocked() <-chan struct{} {
	m.restart = false
	switch m.state {
	case StateRunning, StateStarting:
		m.state = StateStopping
		m.cancel()
		return m.done
	case StateStopping:
		return m.done
	}
	return nil
}

func (m *Manager) awaitStop(ctx context.Context, done <-chan struct{}) error {
	if done == nil || inLoop(ctx) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish runs when the loop goroutine exits.
func (m *Manager) finish(done chan struct{}) {
	m.stateMu.Lock()
	m.state = StateStopped
	m.cancel = nil
	m.stops.Add(1)
	restart := m.restart
	m.restart = false
	m.log.Info("[ECON] monitor stopped")
	if restart {
		m.startLocked()
	}
	m.stateMu.Unlock()
	close(done)
}

type inLoopKey struct{}

func inLoop(ctx context.Context) bool {
	return ctx != nil && ctx.Value(inLoopKey{}) != nil
}

func (m *Manager) setLastErr(err error) {
	if err == nil {
		m.lastErr.Store(nil)
		return
	}
	s := err.Error()
	m.lastErr.Store(&s)
}
