package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrUnknownEventType is returned when decoding an unregistered event type.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

// Registry maps event type names to payload types for decoding.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs a registry with the given sample events.
func NewRegistry(samples ...any) *Registry {
	r := &Registry{types: make(map[string]reflect.Type)}
	for _, sample := range samples {
		r.Register(sample)
	}
	return r
}

// Register registers an event type (value or pointer) and returns its name.
func (r *Registry) Register(sample any) string {
	if r == nil || sample == nil {
		return ""
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.types[t.String()] = t
	r.mu.Unlock()
	return t.String()
}

// Names lists registered event types.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodePayload decodes the envelope payload into a value of the registered type.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	return target.Elem().Interface(), nil
}
