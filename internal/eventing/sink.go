package eventing

import (
	"context"
	"errors"
)

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Sink writes events to an outbox without delivering them. A sink bound to
// a transaction makes events part of that transaction.
type Sink struct {
	outbox   OutboxWriter
	tenantID string
}

// NewSink constructs a sink.
func NewSink(outbox OutboxWriter, tenantID string) *Sink {
	return &Sink{outbox: outbox, tenantID: tenantID}
}

// Append wraps event in an envelope and writes it to the outbox.
func (s *Sink) Append(ctx context.Context, event any) error {
	if s == nil || s.outbox == nil {
		return errors.New("eventing: nil outbox")
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, s.tenantID))
	if err != nil {
		return err
	}
	_, err = s.outbox.Insert(ctx, env)
	return err
}
