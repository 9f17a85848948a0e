package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies a committed state transition.
type EventKind string

const (
	BlockAdded           EventKind = "block_added"
	BlockRemoved         EventKind = "block_removed"
	TransactionAdded     EventKind = "transaction_added"
	TransactionConfirmed EventKind = "transaction_confirmed"
)

// Event is published after a mutation has been applied.
type Event struct {
	Kind          EventKind `json:"kind"`
	BlockID       uint64    `json:"blockId,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
}

// SubscriberID identifies a subscription.
type SubscriberID string

const subscriberBuffer = 64

type eventBus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]chan Event
}

func newEventBus() *eventBus {
	return &eventBus{subscribers: make(map[SubscriberID]chan Event)}
}

func (b *eventBus) subscribe() (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := SubscriberID(uuid.Must(uuid.NewV7()).String())
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	slog.Debug("Store subscriber added", "subscriber", id, "total", len(b.subscribers))
	return id, ch
}

func (b *eventBus) unsubscribe(id SubscriberID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return false
	}
	delete(b.subscribers, id)
	close(ch)
	return true
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (b *eventBus) publish(events []Event) {
	if len(events) == 0 {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
				slog.Warn("Store subscriber buffer full, dropping event", "subscriber", id, "kind", ev.Kind)
			}
		}
	}
}

func (b *eventBus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
