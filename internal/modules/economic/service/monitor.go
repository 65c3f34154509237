package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sentinel_bot/internal/models"
)

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer m.finish(done)

	for {
		if ctx.Err() != nil {
			return
		}

		wait := m.opts.Interval
		if err := m.safeTick(ctx); err != nil {
			m.metrics.loopFaults.Inc()
			m.setLastErr(err)
			m.log.Error("[ECON] tick failed, backing off",
				zap.Error(err),
				zap.Duration("backoff", m.opts.Backoff),
			)
			wait = m.opts.Backoff
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// safeTick turns a panic inside the tick body into an error.
func (m *Manager) safeTick(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic in tick: %v\n%s", p, debug.Stack())
		}
	}()
	return m.Tick(ctx)
}

// Tick runs one polling pass: prune, load, match, dispatch, mark processed.
// A feed failure is logged and reported as success so the loop waits a full interval.
func (m *Manager) Tick(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "economic.Tick")
	defer span.Finish()

	now := m.opts.Now().UTC()
	windowEnd := now.Add(m.opts.Interval)
	m.lastTick.Store(now.UnixNano())
	m.metrics.ticks.Inc()

	prunedProcessed, prunedNotified := m.dedup.PruneExpired(now)
	if prunedProcessed+prunedNotified > 0 {
		m.log.Debug("[ECON] dedup pruned",
			zap.Int("processed", prunedProcessed),
			zap.Int("notified", prunedNotified),
		)
	}
	defer func() { m.metrics.processed.Set(float64(m.dedup.ProcessedLen())) }()

	events, err := m.loadEvents(ctx)
	if err != nil {
		if errors.Is(err, ErrFeedUnavailable) {
			m.metrics.feedFailures.Inc()
			m.setLastErr(err)
			m.log.Warn("[ECON] calendar unavailable, skipping tick", zap.Error(err))
			return nil
		}
		ext.Error.Set(span, true)
		return err
	}

	relevant := selectRelevant(events, now, windowEnd, m.dedup)
	span.SetTag("events", len(events))
	span.SetTag("relevant", len(relevant))

	for _, ev := range relevant {
		m.processEvent(ctx, ev, now)
	}
	m.setLastErr(nil)
	return nil
}

// loadEvents reads the snapshot and shifts broker-local times to UTC.
func (m *Manager) loadEvents(ctx context.Context) ([]models.EconomicEvent, error) {
	offset, err := m.timezoneOffset(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "timezone offset: %v", err)
	}

	events, err := m.source.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrFeedUnavailable) {
			err = errors.Wrapf(ErrFeedUnavailable, "%v", err)
		}
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.Wrap(ErrFeedUnavailable, "empty snapshot")
	}

	shift := time.Duration(offset * float64(time.Hour))
	out := make([]models.EconomicEvent, len(events))
	for i, ev := range events {
		ev.Time = ev.Time.Add(-shift).UTC()
		out[i] = ev
	}
	return out, nil
}

// timezoneOffset asks the broker once and caches the answer. Without a broker the
// feed is taken as UTC and the question is asked again later.
func (m *Manager) timezoneOffset(ctx context.Context) (float64, error) {
	m.stateMu.Lock()
	broker, cached := m.broker, m.tzHours
	m.stateMu.Unlock()

	if cached != nil {
		return *cached, nil
	}
	if broker == nil {
		return 0, nil
	}

	hours, err := broker.TimezoneOffset(ctx, m.opts.ReferenceSymbol)
	if err != nil {
		return 0, err
	}
	m.stateMu.Lock()
	m.tzHours = &hours
	m.stateMu.Unlock()
	m.log.Info("[ECON] broker timezone resolved",
		zap.String("symbol", m.opts.ReferenceSymbol),
		zap.Float64("offset_hours", hours),
	)
	return hours, nil
}

// selectRelevant keeps events inside [now, windowEnd] that were not processed yet.
func selectRelevant(events []models.EconomicEvent, now, windowEnd time.Time, d *Dedup) []models.EconomicEvent {
	var out []models.EconomicEvent
	for _, ev := range events {
		if ev.Time.Before(now) || ev.Time.After(windowEnd) {
			continue
		}
		if d.IsProcessed(ev.ID) {
			continue
		}
		out = append(out, ev)
	}
	slices.SortStableFunc(out, func(a, b models.EconomicEvent) int { return a.Time.Compare(b.Time) })
	return out
}

func (m *Manager) processEvent(ctx context.Context, ev models.EconomicEvent, now time.Time) {
	ev.SecondsUntil = ev.Time.Sub(now).Seconds()

	snapshot := m.registry.Snapshot()
	byImportance := snapshot[ev.Country]

	importances := make([]models.Importance, 0, len(byImportance))
	for imp := range byImportance {
		importances = append(importances, imp)
	}
	slices.Sort(importances)

	var targets []Observer
	for _, imp := range importances {
		if ev.Importance > imp {
			continue
		}
		for _, o := range byImportance[imp] {
			if m.dedup.TryNotify(o.Ref(), ev.ID, ev.Time) {
				targets = append(targets, o)
			}
		}
	}
	if len(targets) == 0 {
		return
	}

	m.log.Info("[ECON] dispatching event",
		zap.String("event_id", ev.ID),
		zap.String("event", ev.Name),
		zap.String("country", ev.Country),
		zap.Stringer("importance", ev.Importance),
		zap.Time("event_time", ev.Time),
		zap.Int("observers", len(targets)),
	)

	deliveries := m.dispatch(ctx, ev, targets)
	m.dedup.MarkProcessed(ev.ID, ev.Time)

	failed := 0
	for _, d := range deliveries {
		if !d.OK() {
			failed++
		}
	}
	if failed > 0 {
		m.log.Warn("[ECON] event dispatched with failures",
			zap.String("event_id", ev.ID),
			zap.Int("failed", failed),
			zap.Int("total", len(deliveries)),
		)
	}

	if err := m.journal.Record(context.WithoutCancel(ctx), deliveries); err != nil {
		m.log.Error("[ECON] journal write failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// dispatch runs every callback concurrently, at most MaxConcurrency at a time, and
// returns one result per target in target order.
func (m *Manager) dispatch(ctx context.Context, ev models.EconomicEvent, targets []Observer) []Delivery {
	span, ctx := opentracing.StartSpanFromContext(ctx, "economic.dispatch")
	defer span.Finish()
	span.SetTag("event_id", ev.ID)

	// колбэки доживают до конца даже при Stop
	cbCtx := context.WithValue(context.WithoutCancel(ctx), inLoopKey{}, struct{}{})

	results := make([]Delivery, len(targets))
	var g errgroup.Group
	g.SetLimit(m.opts.MaxConcurrency)
	for i, o := range targets {
		g.Go(func() error {
			results[i] = m.invoke(cbCtx, ev, o)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) invoke(ctx context.Context, ev models.EconomicEvent, o Observer) (d Delivery) {
	start := time.Now()
	d = Delivery{Event: ev, Subscriber: o.Ref()}

	defer func() {
		if p := recover(); p != nil {
			d.Err = errors.Wrap(ErrCallbackFailure, fmt.Sprintf("panic: %v", p))
		}
		d.Duration = time.Since(start)
		d.DeliveredAt = m.opts.Now().UTC()

		result := "ok"
		if d.Err != nil {
			result = "error"
			m.log.Error("[ECON] observer callback failed",
				zap.String("observer", o.ID),
				zap.String("country", o.Country),
				zap.String("event_id", ev.ID),
				zap.Error(d.Err),
			)
		}
		m.metrics.deliveries.WithLabelValues(o.Country, result).Inc()
		m.metrics.callbackDuration.Observe(d.Duration.Seconds())
	}()

	if m.opts.CallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.CallbackTimeout)
		defer cancel()
	}

	if err := o.Callback(ctx, ev); err != nil {
		d.Err = fmt.Errorf("%w: %w", ErrCallbackFailure, err)
	}
	return d
}
