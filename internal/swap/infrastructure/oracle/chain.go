package oracle

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"irs-settlement/internal/swap/application"
)

// Chain asks each oracle in order and returns the first reading.
type Chain struct {
	oracles []application.Oracle
	logger  *zap.Logger
}

// NewChain constructs a chain. Nil oracles are skipped.
func NewChain(logger *zap.Logger, oracles ...application.Oracle) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{logger: logger}
	for _, o := range oracles {
		if o != nil {
			c.oracles = append(c.oracles, o)
		}
	}
	return c
}

// Len returns the number of oracles in the chain.
func (c *Chain) Len() int { return len(c.oracles) }

// GetRate falls through to the next oracle on any error. A cancelled
// context stops the chain.
func (c *Chain) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	if len(c.oracles) == 0 {
		return application.RateValue{}, ErrNoRate
	}
	var errs []error
	for i, o := range c.oracles {
		value, err := o.GetRate(ctx, req)
		if err == nil {
			return value, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.logger.Debug("oracle fallthrough",
			zap.Int("position", i),
			zap.String("source", req.Source.Hex()),
			zap.Error(err),
		)
	}
	return application.RateValue{}, errors.Join(errs...)
}
