package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// EventStore persists pipeline events. This is a subset of eventstore.Store
// to avoid a circular dependency.
type EventStore interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
}

// Handler processes an Event; return error to signal failure.
type Handler func(Event) error

// Bus is a simple synchronous pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	eventStore  EventStore // optional persistence
}

func NewBus() *Bus { return &Bus{subscribers: map[string][]Handler{}} }

// NewBusWithEventStore creates a bus that persists events before delivery.
func NewBusWithEventStore(store EventStore) *Bus {
	return &Bus{subscribers: map[string][]Handler{}, eventStore: store}
}

// Subscribe registers a handler for a given event name.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[event] = append(b.subscribers[event], h)
	b.mu.Unlock()
}

// Publish delivers an event to all handlers synchronously. When an event
// store is configured the event is persisted first; persistence failures are
// logged but do not fail the run.
func (b *Bus) Publish(e Event) error {
	if b.eventStore != nil {
		if err := b.eventStore.Append(context.Background(), e.GetRunID(), e.Name(), payloadFor(e), nil); err != nil {
			slog.Warn("Failed to persist pipeline event", "event", e.Name(), "run_id", e.GetRunID(), "error", err)
		}
	}

	b.mu.RLock()
	hs := append([]Handler(nil), b.subscribers[e.Name()]...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(e); err != nil {
			return err
		}
	}
	return nil
}

// payloadFor serializes the fields the history projection reads back.
func payloadFor(e Event) []byte {
	var v any
	switch ev := e.(type) {
	case RunStarted:
		v = map[string]string{"group": ev.Group, "branch": ev.Branch, "trigger": ev.Trigger}
	case RunCompleted:
		v = map[string]string{"commit": ev.Commit}
	case RunFailed:
		v = map[string]string{"stage": string(ev.Stage), "error": ev.Err}
	case StageFailed:
		v = map[string]string{"stage": string(ev.Stage), "error": ev.Err}
	default:
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
