// Package events publishes domain events from the dispatch core so external
// collaborators (notification delivery, dashboards) can react to them. The
// core never consumes its own events; clients poll the stores for state.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Event represents a domain event
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	// Actor information
	ActorID   types.ID `json:"actor_id,omitempty"`
	ActorRole string   `json:"actor_role,omitempty"`

	// Event data
	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID types.ID, actorRole string) Event {
	e.ActorID = actorID
	e.ActorRole = actorRole
	return e
}

// Bus is the interface for event publishing
type Bus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Close closes the bus connection
	Close()

	// Health checks the bus connection
	Health() error
}

// MemoryBus is an in-process bus that records published events. It backs
// deployments without EventStoreDB and lets tests assert on publications.
type MemoryBus struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryBus creates an in-memory event bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish records the event
func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

// Events returns a snapshot of all published events
func (b *MemoryBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Close is a no-op
func (b *MemoryBus) Close() {}

// Health always reports healthy
func (b *MemoryBus) Health() error { return nil }

var _ Bus = (*MemoryBus)(nil)
