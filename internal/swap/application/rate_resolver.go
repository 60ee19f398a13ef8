package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"irs-settlement/internal/observability/metrics"
	swap "irs-settlement/internal/swap/domain"
)

// DefaultOracleTimeout bounds a single oracle read.
const DefaultOracleTimeout = 5 * time.Second

const manualSource = "manual"

// RateResolver produces the floating rate of a period.
type RateResolver struct {
	oracle    Oracle
	tolerance time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// ResolverOption configures a RateResolver.
type ResolverOption func(*RateResolver)

// WithOracleTimeout overrides the per-read timeout.
func WithOracleTimeout(timeout time.Duration) ResolverOption {
	return func(r *RateResolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *RateResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRateResolver constructs a resolver. Quotes older than tolerance at the
// settlement time are rejected. oracle may be nil when every agreement uses a
// manual benchmark.
func NewRateResolver(oracle Oracle, tolerance time.Duration, opts ...ResolverOption) (*RateResolver, error) {
	if tolerance <= 0 {
		return nil, errors.New("rate resolver: stale tolerance must be positive")
	}
	r := &RateResolver{
		oracle:    oracle,
		tolerance: tolerance,
		timeout:   DefaultOracleTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns benchmark, spread and floating rate for agreement at asOf,
// expressed in the agreement's rates decimals.
func (r *RateResolver) Resolve(ctx context.Context, agreement *swap.Agreement, asOf time.Time) (swap.RateQuote, error) {
	if agreement == nil {
		return swap.RateQuote{}, swap.ErrNilAggregate
	}
	source := agreement.BenchmarkSource()
	if value, ok := source.ManualValue(); ok {
		return swap.NewRateQuote(value, agreement.Spread(), agreement.RatesDecimals(), asOf, manualSource)
	}
	address, ok := source.Oracle()
	if !ok {
		return swap.RateQuote{}, fmt.Errorf("%w: no benchmark source", swap.ErrInvalidTerms)
	}
	if r.oracle == nil {
		metrics.IncOracleError("not_configured")
		return swap.RateQuote{}, fmt.Errorf("%w: no oracle configured", swap.ErrOracleUnavailable)
	}

	readCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	value, err := r.oracle.GetRate(readCtx, RateRequest{Source: address, Benchmark: agreement.Benchmark(), AsOf: asOf})
	metrics.ObserveOracle(value.Source, time.Since(start))
	if err != nil {
		reason := "query"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.IncOracleError(reason)
		r.logger.Warn("oracle read failed",
			zap.String("agreement_id", agreement.ID()),
			zap.String("oracle", address.Hex()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return swap.RateQuote{}, fmt.Errorf("%w: %v", swap.ErrOracleUnavailable, err)
	}

	if value.UpdatedAt.After(asOf) {
		metrics.IncOracleError("ahead")
		return swap.RateQuote{}, fmt.Errorf("%w: observed %s, after as of %s", swap.ErrStaleQuote,
			value.UpdatedAt.Format(time.RFC3339), asOf.Format(time.RFC3339))
	}
	if value.UpdatedAt.IsZero() || asOf.Sub(value.UpdatedAt) > r.tolerance {
		metrics.IncOracleError("stale")
		return swap.RateQuote{}, fmt.Errorf("%w: updated %s, as of %s", swap.ErrStaleQuote,
			value.UpdatedAt.Format(time.RFC3339), asOf.Format(time.RFC3339))
	}

	benchmark, err := swap.Rescale(value.Value, value.Decimals, agreement.RatesDecimals())
	if err != nil {
		return swap.RateQuote{}, err
	}
	sourceName := value.Source
	if sourceName == "" {
		sourceName = address.Hex()
	}
	return swap.NewRateQuote(benchmark, agreement.Spread(), agreement.RatesDecimals(), value.UpdatedAt, sourceName)
}
