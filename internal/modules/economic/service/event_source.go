package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"sentinel_bot/internal/models"
)

// DefaultTimeLayout is the calendar's broker-local timestamp format.
const DefaultTimeLayout = "2006.01.02 15:04"

// EventSource reads the current calendar snapshot. Timestamps are returned as read from
// the feed (broker-local wall clock tagged as UTC); the manager normalises them.
type EventSource interface {
	LoadSnapshot(ctx context.Context) ([]models.EconomicEvent, error)
}

// Broker is the part of the trading terminal the monitor needs.
type Broker interface {
	WorkingDirectory(ctx context.Context) (string, error)
	TimezoneOffset(ctx context.Context, symbol string) (float64, error)
}

// BrokerBinder is implemented by sources that locate the feed through the broker.
type BrokerBinder interface {
	BindBroker(b Broker)
}

// feedID accepts both "123" and 123.
type feedID string

func (id *feedID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if s == "" || s == "null" {
		return errors.New("empty event_id")
	}
	*id = feedID(s)
	return nil
}

func (id *feedID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	if v == nil {
		return errors.New("empty event_id")
	}
	*id = feedID(fmt.Sprint(v))
	return nil
}

// feedRecord: запись календаря в том виде, в каком её пишет терминал.
type feedRecord struct {
	EventID    feedID `json:"event_id" yaml:"event_id"`
	Name       string `json:"event_name" yaml:"event_name"`
	Country    string `json:"country_code" yaml:"country_code"`
	Currency   string `json:"currency" yaml:"currency"`
	Importance int    `json:"event_importance" yaml:"event_importance"`
	Time       string `json:"event_time" yaml:"event_time"`
}

func (r feedRecord) toEvent(layout, source string) (models.EconomicEvent, error) {
	if r.EventID == "" {
		return models.EconomicEvent{}, errors.New("record without event_id")
	}
	imp := models.Importance(r.Importance)
	if !imp.Valid() {
		return models.EconomicEvent{}, errors.Errorf("event %s: importance %d out of range", r.EventID, r.Importance)
	}
	country := normalizeCountry(r.Country)
	if country == "" {
		return models.EconomicEvent{}, errors.Errorf("event %s: empty country_code", r.EventID)
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(r.Time), time.UTC)
	if err != nil {
		return models.EconomicEvent{}, errors.Wrapf(err, "event %s: event_time", r.EventID)
	}
	return models.EconomicEvent{
		ID:         string(r.EventID),
		Name:       r.Name,
		Country:    country,
		Currency:   strings.ToUpper(r.Currency),
		Importance: imp,
		Time:       t,
		Source:     source,
	}, nil
}

func recordsToEvents(records []feedRecord, layout, source string) ([]models.EconomicEvent, error) {
	if len(records) == 0 {
		return nil, errors.Wrapf(ErrFeedUnavailable, "%s: empty snapshot", source)
	}
	out := make([]models.EconomicEvent, 0, len(records))
	for _, r := range records {
		ev, err := r.toEvent(layout, source)
		if err != nil {
			return nil, errors.Wrapf(ErrFeedUnavailable, "%s: %v", source, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// decodeJSON parses a JSON array of calendar records.
func decodeJSON(data []byte, layout, source string) ([]models.EconomicEvent, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.Wrapf(ErrFeedUnavailable, "%s: empty snapshot", source)
	}
	var records []feedRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "%s: decode: %v", source, err)
	}
	return recordsToEvents(records, layout, source)
}

func layoutOrDefault(layout string) string {
	if layout == "" {
		return DefaultTimeLayout
	}
	return layout
}
