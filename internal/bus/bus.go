// Package bus provides the async event bus between the engine and its sinks.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known event names.
const (
	EventInvitationCreated   = "invitation.created"
	EventInvitationResponded = "invitation.responded"
	EventInvitationExpired   = "invitation.expired"
	EventDateCompleted       = "date.completed"
	EventTokensAwarded       = "tokens.awarded"
	EventTokensSpent         = "tokens.spent"
	EventSweepFinished       = "sweep.finished"

	// Wildcard subscribes to every event.
	Wildcard = "*"
)

// Event is a notification emitted after a state change has committed.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ev *Event)
}

// Handler receives dispatched events.
type Handler func(ctx context.Context, ev *Event)

// EventBus fans events out to subscribers by name.
type EventBus struct {
	events  chan *Event
	subs    map[string][]Handler
	dropped int
	mu      sync.RWMutex
}

// New creates an event bus with the given buffer size.
func New(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 100
	}
	return &EventBus{
		events: make(chan *Event, buffer),
		subs:   make(map[string][]Handler),
	}
}

// Publish enqueues ev. A full buffer drops the event; the state change it
// describes has already been committed.
func (b *EventBus) Publish(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case b.events <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		slog.Warn("Event bus full, dropping event", "event", ev.Name, "id", ev.ID)
	}
}

// Subscribe registers fn for events named name, or all events with Wildcard.
func (b *EventBus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[name] = append(b.subs[name], fn)
}

// Dispatch runs the dispatcher until ctx is cancelled.
// This should be run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.deliver(ctx, ev)
		}
	}
}

// Drain delivers whatever is buffered and returns.
func (b *EventBus) Drain(ctx context.Context) {
	for {
		select {
		case ev := <-b.events:
			b.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (b *EventBus) deliver(ctx context.Context, ev *Event) {
	b.mu.RLock()
	handlers := append(append([]Handler(nil), b.subs[ev.Name]...), b.subs[Wildcard]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}

// Pending returns the number of buffered events.
func (b *EventBus) Pending() int {
	return len(b.events)
}

// Dropped returns how many events were discarded on a full buffer.
func (b *EventBus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(*Event) {}
