// Package bus provides the in-process typed publish/subscribe channel all
// components communicate through. Delivery is synchronous and in subscription
// order per event type; a panicking handler is recovered and logged and does
// not block delivery to the remaining handlers. There is no replay: handlers
// registered after an event fires never see it.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Handler processes one event. Handlers run on the publisher's goroutine.
type Handler func(ctx context.Context, ev domain.Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a typed publish/subscribe registry: a map from event type to an
// ordered list of handlers. One instance is shared per process and passed by
// reference to every component.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscription
	all    []subscription
	nextID uint64
	logger *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[domain.EventType][]subscription),
		logger: logger.With(slog.String("component", "bus")),
	}
}

// Subscribe registers a handler for one event type and returns an unsubscribe
// function that removes exactly that handler.
func (b *Bus) Subscribe(t domain.EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[t] = remove(b.subs[t], id)
	}
}

// SubscribeAll registers a handler for every event type. Used by taps such as
// the redis mirror and the notifier.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

// Publish delivers the payload synchronously to all current subscribers of
// the type, in subscription order, then to all-type subscribers. No ordering
// guarantee is made across distinct types.
func (b *Bus) Publish(ctx context.Context, t domain.EventType, payload any) {
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]subscription, 0, len(b.subs[t])+len(b.all))
	handlers = append(handlers, b.subs[t]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, sub := range handlers {
		b.deliver(ctx, sub, ev)
	}
}

// deliver invokes one handler, containing any panic so a failing subscriber
// cannot break delivery to the rest.
func (b *Bus) deliver(ctx context.Context, sub subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				slog.String("event_type", string(ev.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	sub.handler(ctx, ev)
}

func remove(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
