package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"irs-settlement/internal/observability/metrics"
)

// DefaultDispatchLimit is used when Dispatch is called with a non-positive limit.
const DefaultDispatchLimit = 50

// Dispatcher delivers pending outbox events to the in-process bus.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
	logger   *zap.Logger
}

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Claimed int
	Sent    int
	Failed  int
	DLQ     int
}

// NewDispatcher constructs a dispatcher. dlq and logger may be nil.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq, logger: logger}
}

// Dispatch pulls up to limit pending records and delivers them. Failed
// deliveries are marked failed and copied to the DLQ.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	start := time.Now()
	var result DispatchResult
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = DefaultDispatchLimit
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0)
		return result, err
	}
	result.Claimed = len(records)

	var firstErr error
	for _, record := range records {
		env := record.Envelope
		deliveryErr := d.deliver(ctx, env)
		if deliveryErr == nil {
			if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				result.Failed++
				continue
			}
			result.Sent++
			continue
		}

		result.Failed++
		d.logger.Warn("outbox delivery failed",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Error(deliveryErr),
		)
		if err := d.outbox.MarkFailed(ctx, record.ID); err != nil && firstErr == nil {
			firstErr = err
		}
		if d.dlq != nil {
			if err := d.dlq.RecordFailure(ctx, env, deliveryErr); err == nil {
				result.DLQ++
			}
		}
	}

	outcome := metrics.ResultSuccess
	if firstErr != nil || result.Failed > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(outcome, time.Since(start), result.Sent, result.Failed)
	return result, firstErr
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	payload, err := d.registry.DecodePayload(env)
	if err != nil {
		return err
	}
	return d.bus.Publish(WithEnvelope(ctx, env), payload)
}
