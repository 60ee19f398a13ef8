package memory

import (
	"context"
	"errors"
	"sync"

	"irs-settlement/internal/eventing"
)

const (
	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

type outboxEntry struct {
	id       string
	env      eventing.Envelope
	status   string
	attempts int
}

// OutboxStore is an in-memory outbox. Event ids are unique.
type OutboxStore struct {
	mu      sync.Mutex
	entries []*outboxEntry
	byEvent map[string]struct{}
}

// NewOutboxStore constructs an empty outbox.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{byEvent: make(map[string]struct{})}
}

// Insert appends an envelope unless its event id is already present.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	_ = ctx
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEvent[env.EventID]; ok {
		return "", nil
	}
	id := eventing.NewEventID()
	s.entries = append(s.entries, &outboxEntry{id: id, env: env, status: statusPending})
	s.byEvent[env.EventID] = struct{}{}
	return id, nil
}

// ListPending returns pending records in insertion order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = eventing.DefaultDispatchLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventing.OutboxRecord
	for _, entry := range s.entries {
		if entry.status != statusPending {
			continue
		}
		out = append(out, eventing.OutboxRecord{ID: entry.id, Envelope: entry.env})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkSent marks a record as delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.setStatus(id, statusSent)
}

// MarkFailed marks a record as failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.setStatus(id, statusFailed)
}

// Envelopes returns every envelope written so far, in order.
func (s *OutboxStore) Envelopes() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventing.Envelope, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.env)
	}
	return out
}

func (s *OutboxStore) setStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.id == id {
			entry.status = status
			if status == statusFailed {
				entry.attempts++
			}
			return nil
		}
	}
	return errors.New("outbox store: record not found")
}

// ProcessedStore is an in-memory ProcessedStore.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedStore constructs an empty store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed reports whether consumer handled event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[consumerName+"|"+eventID]
	return ok, nil
}

// MarkProcessed records that consumer handled event.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[consumerName+"|"+eventID] = struct{}{}
	return nil
}
