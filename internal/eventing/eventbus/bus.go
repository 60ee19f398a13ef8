package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// EventBus delivers events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("eventbus: nil event")
	// ErrInvalidEventType is returned when the event type cannot be determined
	// or a handler receives an event of another type.
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
)

// InMemoryBus is a synchronous in-process bus.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus constructs a new in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]EventHandler)}
}

// Publish runs every handler of the event's type and joins their errors.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Handle adapts a typed handler to an EventHandler. Pointer payloads are
// dereferenced.
func Handle[T any](fn func(ctx context.Context, event T) error) EventHandler {
	return func(ctx context.Context, event any) error {
		switch evt := event.(type) {
		case T:
			return fn(ctx, evt)
		case *T:
			if evt == nil {
				return ErrNilEvent
			}
			return fn(ctx, *evt)
		default:
			return ErrInvalidEventType
		}
	}
}

// EventType returns the fully-qualified type name for an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the fully-qualified type name for a type parameter.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
