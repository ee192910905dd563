package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/paypr/backend/internal/models"
)

// Analytics event names.
const (
	EventPay = "pay"
)

type EventStore interface {
	InsertEvent(ctx context.Context, e *models.Event) error
}

// EventTracker writes analytics events in the background. A failed write is
// logged and dropped; it never reaches the request that produced the event.
type EventTracker struct {
	store   EventStore
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewEventTracker(store EventStore) *EventTracker {
	return &EventTracker{store: store, timeout: 2 * time.Second}
}

func (t *EventTracker) Track(e models.Event) {
	if t == nil || t.store == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		if err := t.store.InsertEvent(ctx, &e); err != nil {
			log.Printf("[EVENTS] Dropped %s event: %v", e.Name, err)
		}
	}()
}

// Wait blocks until every tracked event has been written or dropped.
func (t *EventTracker) Wait() {
	if t != nil {
		t.wg.Wait()
	}
}
