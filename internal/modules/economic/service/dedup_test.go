package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sentinel_bot/internal/models"
)

func TestDedupMissingKeys(t *testing.T) {
	d := NewDedup(24 * time.Hour)
	ref := SubscriberRef{Country: "US", Importance: models.ImportanceHigh, ID: "a"}

	assert.False(t, d.IsProcessed("nope"))
	assert.False(t, d.HasNotified(ref, "nope"))
	assert.Zero(t, d.NotifiedLen(ref))
	assert.NotPanics(t, func() {
		p, n := d.PruneExpired(time.Now())
		assert.Zero(t, p)
		assert.Zero(t, n)
	})
}

func TestDedupNotified(t *testing.T) {
	d := NewDedup(24 * time.Hour)
	a := SubscriberRef{Country: "US", Importance: models.ImportanceHigh, ID: "a"}
	b := SubscriberRef{Country: "US", Importance: models.ImportanceMedium, ID: "a"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d.MarkNotified(a, "E1", at)
	assert.True(t, d.HasNotified(a, "E1"))
	assert.False(t, d.HasNotified(b, "E1"), "importance is part of the identity")

	assert.False(t, d.TryNotify(a, "E1", at))
	assert.True(t, d.TryNotify(b, "E1", at))
	assert.False(t, d.TryNotify(b, "E1", at))
}

func TestDedupPruneExpired(t *testing.T) {
	d := NewDedup(24 * time.Hour)
	ref := SubscriberRef{Country: "US", Importance: models.ImportanceHigh, ID: "a"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d.MarkProcessed("past", now.Add(-time.Minute))
	d.MarkProcessed("exact", now)
	d.MarkProcessed("future", now.Add(time.Minute))

	d.MarkNotified(ref, "old", now.Add(-25*time.Hour))
	d.MarkNotified(ref, "recent", now.Add(-23*time.Hour))

	processed, notified := d.PruneExpired(now)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, notified)

	assert.False(t, d.IsProcessed("past"))
	assert.False(t, d.IsProcessed("exact"))
	assert.True(t, d.IsProcessed("future"))
	assert.Equal(t, 1, d.ProcessedLen())

	assert.False(t, d.HasNotified(ref, "old"))
	assert.True(t, d.HasNotified(ref, "recent"))

	// the whole set goes once its last id expires
	d.PruneExpired(now.Add(2 * time.Hour))
	assert.Zero(t, d.NotifiedLen(ref))
}

func TestDedupReset(t *testing.T) {
	d := NewDedup(time.Hour)
	ref := SubscriberRef{Country: "US", Importance: models.ImportanceHigh, ID: "a"}
	d.MarkProcessed("E1", time.Now())
	d.MarkNotified(ref, "E1", time.Now())
	d.Reset()
	assert.Zero(t, d.ProcessedLen())
	assert.False(t, d.HasNotified(ref, "E1"))
}
