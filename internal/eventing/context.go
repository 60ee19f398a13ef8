package eventing

import "context"

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyMeta     contextKey = "eventing.meta"
)

// WithEnvelope attaches the envelope being delivered to context.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(contextKeyEnvelope).(Envelope)
	return env, ok
}

func withMeta(ctx context.Context, update func(*Meta)) context.Context {
	meta, _ := ctx.Value(contextKeyMeta).(Meta)
	update(&meta)
	return context.WithValue(ctx, contextKeyMeta, meta)
}

// WithTenantID sets tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.TenantID = tenantID })
}

// WithCorrelationID sets correlation id in context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.CorrelationID = correlationID })
}

// WithEventID pins the id of the next event written with this context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.EventID = eventID })
}

// MetaFromContext builds metadata from context with a default tenant.
// A delivered envelope propagates its correlation id to follow-up events.
func MetaFromContext(ctx context.Context, defaultTenantID string) Meta {
	meta, _ := ctx.Value(contextKeyMeta).(Meta)
	if meta.CorrelationID == "" {
		if env, ok := EnvelopeFromContext(ctx); ok {
			meta.CorrelationID = env.CorrelationID
			if meta.TenantID == "" {
				meta.TenantID = env.TenantID
			}
		}
	}
	if meta.TenantID == "" {
		meta.TenantID = defaultTenantID
	}
	return meta
}
