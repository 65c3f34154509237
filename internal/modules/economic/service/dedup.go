package service

import (
	"sync"
	"time"

	"sentinel_bot/internal/models"
)

// SubscriberRef is the identity a notified-set is kept under. It outlives the
// registration itself, so re-registering the same id does not re-deliver.
type SubscriberRef struct {
	Country    string
	Importance models.Importance
	ID         string
}

// Dedup tracks processed events and per-subscriber notified ids.
// Nothing here fails on a missing key.
type Dedup struct {
	mu        sync.RWMutex
	retention time.Duration

	processed map[string]time.Time
	// id события -> время события, чтобы чистить по горизонту
	notified map[SubscriberRef]map[string]time.Time
}

func NewDedup(retention time.Duration) *Dedup {
	return &Dedup{
		retention: retention,
		processed: make(map[string]time.Time),
		notified:  make(map[SubscriberRef]map[string]time.Time),
	}
}

func (d *Dedup) MarkProcessed(eventID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed[eventID] = at
}

func (d *Dedup) IsProcessed(eventID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.processed[eventID]
	return ok
}

// MarkNotified records that ref has been handed eventID, which occurs at eventTime.
func (d *Dedup) MarkNotified(ref SubscriberRef, eventID string, eventTime time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.notified[ref]
	if !ok {
		set = make(map[string]time.Time)
		d.notified[ref] = set
	}
	set[eventID] = eventTime
}

func (d *Dedup) HasNotified(ref SubscriberRef, eventID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.notified[ref][eventID]
	return ok
}

// TryNotify marks eventID for ref and reports true, or reports false if it was already there.
func (d *Dedup) TryNotify(ref SubscriberRef, eventID string, eventTime time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.notified[ref]
	if !ok {
		set = make(map[string]time.Time)
		d.notified[ref] = set
	}
	if _, seen := set[eventID]; seen {
		return false
	}
	set[eventID] = eventTime
	return true
}

// PruneExpired drops processed entries at or before now and notified ids whose event
// is older than now minus the retention horizon. It returns how many of each went.
func (d *Dedup) PruneExpired(now time.Time) (processed, notified int) {
	horizon := now.Add(-d.retention)

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, at := range d.processed {
		if !at.After(now) {
			delete(d.processed, id)
			processed++
		}
	}
	for ref, set := range d.notified {
		for id, at := range set {
			if at.Before(horizon) {
				delete(set, id)
				notified++
			}
		}
		if len(set) == 0 {
			delete(d.notified, ref)
		}
	}
	return processed, notified
}

func (d *Dedup) ProcessedLen() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.processed)
}

// NotifiedLen returns the number of ids remembered for ref.
func (d *Dedup) NotifiedLen(ref SubscriberRef) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notified[ref])
}

func (d *Dedup) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed = make(map[string]time.Time)
	d.notified = make(map[SubscriberRef]map[string]time.Time)
}
