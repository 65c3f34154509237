package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
)

// StreamSource keeps the latest calendar pushed over a websocket. LoadSnapshot returns
// the last complete snapshot and never blocks on the network.
type StreamSource struct {
	url    string
	layout string
	log    *zap.Logger
	dialer *websocket.Dialer

	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu       sync.RWMutex
	events   []models.EconomicEvent
	received time.Time
	lastErr  error
}

// streamFrame is either {"op":"snapshot","data":[...]} or a bare array of records.
type streamFrame struct {
	Op   string       `json:"op"`
	Data []feedRecord `json:"data"`
}

func NewStreamSource(url, layout string, log *zap.Logger) *StreamSource {
	return &StreamSource{
		url:            url,
		layout:         layoutOrDefault(layout),
		log:            log,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: time.Second,
		pingInterval:   20 * time.Second,
	}
}

func (s *StreamSource) LoadSnapshot(_ context.Context) ([]models.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.events == nil {
		if s.lastErr != nil {
			return nil, errors.Wrapf(ErrFeedUnavailable, "ws: no snapshot yet: %v", s.lastErr)
		}
		return nil, errors.Wrap(ErrFeedUnavailable, "ws: no snapshot yet")
	}
	return slices.Clone(s.events), nil
}

// Run connects and reconnects until ctx is done.
func (s *StreamSource) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("[ECON] ws session ended, reconnecting", zap.String("url", s.url), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *StreamSource) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.setErr(err)
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"op": "subscribe", "channel": "economic_calendar"}); err != nil {
		s.setErr(err)
		return errors.Wrap(err, "subscribe")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(s.pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return errors.Wrap(err, "read")
		}
		if err := s.apply(msg); err != nil {
			s.log.Warn("[ECON] ws frame dropped", zap.Error(err))
		}
	}
}

func (s *StreamSource) apply(msg []byte) error {
	var records []feedRecord
	if len(msg) > 0 && msg[0] == '[' {
		if err := sonic.Unmarshal(msg, &records); err != nil {
			return errors.Wrap(err, "decode array")
		}
	} else {
		var frame streamFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			return errors.Wrap(err, "decode frame")
		}
		if frame.Op != "snapshot" {
			return nil
		}
		records = frame.Data
	}

	events, err := recordsToEvents(records, s.layout, "ws")
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.events = events
	s.received = time.Now()
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

func (s *StreamSource) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastUpdate is the time the current snapshot arrived, zero if none yet.
func (s *StreamSource) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}
