package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"sentinel_bot/internal/models"
)

// Callback is invoked once per (observer, event) pair.
type Callback func(ctx context.Context, ev models.EconomicEvent) error

// Observer: одна подписка: страна + порог важности + id внутри этого ключа.
type Observer struct {
	ID         string
	Country    string
	Importance models.Importance
	Callback   Callback
}

// Ref identifies the observer for dedup bookkeeping.
func (o Observer) Ref() SubscriberRef {
	return SubscriberRef{Country: o.Country, Importance: o.Importance, ID: o.ID}
}

type observerKey struct {
	Country    string
	Importance models.Importance
}

// Registry is the (country, importance) → id → observer map shared by callers and the loop.
type Registry struct {
	mu      sync.Mutex
	buckets map[observerKey]map[string]Observer
	size    int
}

func NewRegistry() *Registry {
	return &Registry{buckets: make(map[observerKey]map[string]Observer)}
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// Register inserts or replaces the observer under every country. It reports whether
// the registry was empty before the call.
func (r *Registry) Register(countries []string, importance models.Importance, id string, cb Callback) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasEmpty := r.size == 0
	for _, c := range countries {
		key := observerKey{Country: normalizeCountry(c), Importance: importance}
		bucket, ok := r.buckets[key]
		if !ok {
			bucket = make(map[string]Observer)
			r.buckets[key] = bucket
		}
		if _, exists := bucket[id]; !exists {
			r.size++
		}
		bucket[id] = Observer{ID: id, Country: key.Country, Importance: importance, Callback: cb}
	}
	return wasEmpty
}

// Unregister removes the observer from every country and drops empty buckets.
// It reports whether the registry is empty afterwards.
func (r *Registry) Unregister(countries []string, importance models.Importance, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range countries {
		key := observerKey{Country: normalizeCountry(c), Importance: importance}
		bucket, ok := r.buckets[key]
		if !ok {
			continue
		}
		if _, exists := bucket[id]; exists {
			delete(bucket, id)
			r.size--
		}
		if len(bucket) == 0 {
			delete(r.buckets, key)
		}
	}
	return r.size == 0
}

// Snapshot copies the registry grouped by country, then importance. Callbacks are shared.
func (r *Registry) Snapshot() map[string]map[models.Importance][]Observer {
	r.mu.Lock()
	out := make(map[string]map[models.Importance][]Observer, len(r.buckets))
	for key, bucket := range r.buckets {
		byImportance, ok := out[key.Country]
		if !ok {
			byImportance = make(map[models.Importance][]Observer)
			out[key.Country] = byImportance
		}
		list := make([]Observer, 0, len(bucket))
		for _, o := range bucket {
			list = append(list, o)
		}
		byImportance[key.Importance] = list
	}
	r.mu.Unlock()

	for _, byImportance := range out {
		for _, list := range byImportance {
			slices.SortFunc(list, func(a, b Observer) int { return strings.Compare(a.ID, b.ID) })
		}
	}
	return out
}

// Len returns the number of (country, importance, id) registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[observerKey]map[string]Observer)
	r.size = 0
}
