package service

import (
	"context"
	"time"

	"sentinel_bot/internal/models"
)

// Delivery is the outcome of one observer callback.
type Delivery struct {
	Event       models.EconomicEvent
	Subscriber  SubscriberRef
	Err         error
	Duration    time.Duration
	DeliveredAt time.Time
}

func (d Delivery) OK() bool { return d.Err == nil }

// Journal persists delivery outcomes. Failures never affect dedup state.
type Journal interface {
	Record(ctx context.Context, deliveries []Delivery) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, []Delivery) error { return nil }
