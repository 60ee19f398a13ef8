package interfaces

import (
	"context"

	"go.uber.org/zap"

	"irs-settlement/internal/eventing"
	"irs-settlement/internal/eventing/eventbus"
	"irs-settlement/internal/swap/application/events"
)

const eventLoggerConsumer = "swap-event-logger"

// EventLogger writes delivered swap events to the structured log.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger constructs an event logger.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLogger{logger: logger.Named("events")}
}

// Register subscribes the logger to every swap event. store may be nil.
func (l *EventLogger) Register(bus eventbus.EventBus, store eventing.ProcessedStore) {
	eventing.Subscribe(bus, eventbus.EventTypeOf[events.SwapCreated](), eventLoggerConsumer, eventbus.Handle(l.onCreated), store)
	eventing.Subscribe(bus, eventbus.EventTypeOf[events.Swap](), eventLoggerConsumer, eventbus.Handle(l.onSwap), store)
	eventing.Subscribe(bus, eventbus.EventTypeOf[events.TerminateSwap](), eventLoggerConsumer, eventbus.Handle(l.onTerminate), store)
}

func (l *EventLogger) fields(ctx context.Context) []zap.Field {
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		return nil
	}
	return []zap.Field{zap.String("event_id", env.EventID), zap.String("tenant_id", env.TenantID)}
}

func (l *EventLogger) onCreated(ctx context.Context, evt events.SwapCreated) error {
	l.logger.Info("swap created", append(l.fields(ctx),
		zap.String("agreement_id", evt.AgreementID),
		zap.String("payer", evt.Payer.Hex()),
		zap.String("receiver", evt.Receiver.Hex()),
		zap.Int64("notional", evt.Notional),
		zap.Int("periods", evt.Periods),
	)...)
	return nil
}

func (l *EventLogger) onSwap(ctx context.Context, evt events.Swap) error {
	l.logger.Info("swap", append(l.fields(ctx),
		zap.String("agreement_id", evt.AgreementID),
		zap.Time("payment_date", evt.PaymentDate),
		zap.Int64("amount", evt.Amount),
		zap.String("account", evt.Account.Hex()),
		zap.String("direction", evt.Direction),
	)...)
	return nil
}

func (l *EventLogger) onTerminate(ctx context.Context, evt events.TerminateSwap) error {
	l.logger.Info("terminate swap", append(l.fields(ctx),
		zap.String("agreement_id", evt.AgreementID),
		zap.String("payer", evt.Payer.Hex()),
		zap.String("receiver", evt.Receiver.Hex()),
		zap.String("terminated_by", evt.TerminatedBy.Hex()),
	)...)
	return nil
}
