package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paypr/backend/internal/models"
)

type memEvents struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (m *memEvents) InsertEvent(ctx context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *e)
	return nil
}

func TestEventTracker_Track(t *testing.T) {
	store := &memEvents{}
	tracker := NewEventTracker(store)

	for i := int64(1); i <= 3; i++ {
		articleID := i
		tracker.Track(models.Event{Name: EventPay, ArticleID: &articleID})
	}
	tracker.Wait()

	assert.Len(t, store.events, 3)
}

func TestEventTracker_StoreErrorIsDropped(t *testing.T) {
	store := &memEvents{err: errStoreDown}
	tracker := NewEventTracker(store)

	assert.NotPanics(t, func() {
		tracker.Track(models.Event{Name: EventPay})
		tracker.Wait()
	})
	assert.Empty(t, store.events)
}

func TestEventTracker_NilIsSilent(t *testing.T) {
	var tracker *EventTracker
	assert.NotPanics(t, func() {
		tracker.Track(models.Event{Name: EventPay})
		tracker.Wait()
	})
}
