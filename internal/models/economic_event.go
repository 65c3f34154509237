package models

import (
	"fmt"
	"time"
)

// Importance: шкала важности события календаря: 1 low … 3 high.
type Importance int

const (
	ImportanceLow    Importance = 1
	ImportanceMedium Importance = 2
	ImportanceHigh   Importance = 3
)

// Valid reports whether i is on the 1..3 scale.
func (i Importance) Valid() bool {
	return i >= ImportanceLow && i <= ImportanceHigh
}

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceMedium:
		return "medium"
	case ImportanceHigh:
		return "high"
	}
	return fmt.Sprintf("importance(%d)", int(i))
}

// EconomicEvent is one calendar entry as seen on a single tick.
type EconomicEvent struct {
	ID         string     `json:"event_id" yaml:"event_id"`
	Name       string     `json:"event_name" yaml:"event_name"`
	Country    string     `json:"country_code" yaml:"country_code"`
	Currency   string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	Importance Importance `json:"event_importance" yaml:"event_importance"`
	Time       time.Time  `json:"event_time" yaml:"-"` // UTC

	// SecondsUntil is filled right before dispatch: event time minus tick time.
	SecondsUntil float64 `json:"seconds_until_event" yaml:"-"`
	Source       string  `json:"source,omitempty" yaml:"-"`
}

// Until returns the time left before the event relative to now.
func (e EconomicEvent) Until(now time.Time) time.Duration {
	return e.Time.Sub(now)
}
