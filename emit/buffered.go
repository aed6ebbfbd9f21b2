package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory, keyed by request ID. Intended for
// tests and short-lived debugging sessions, not production use.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event under its RequestID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RequestID] = append(b.events[event.RequestID], event)
}

// EmitBatch stores every event in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

// Flush is a no-op: events are already resident in memory.
func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of all events recorded for requestID, in emission
// order. Returns an empty (non-nil) slice if none exist.
func (b *BufferedEmitter) History(requestID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[requestID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Clear removes events for requestID, or every event if requestID is empty.
func (b *BufferedEmitter) Clear(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if requestID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, requestID)
}
