package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"irs-settlement/internal/swap/application"
)

// ErrNoRate is returned when an oracle has no reading for a request.
var ErrNoRate = errors.New("oracle: no rate")

// StaticOracle serves readings set in memory, keyed by source address.
type StaticOracle struct {
	mu    sync.RWMutex
	rates map[common.Address]application.RateValue
}

// NewStaticOracle constructs an empty oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{rates: make(map[common.Address]application.RateValue)}
}

// Set publishes value for source.
func (o *StaticOracle) Set(source common.Address, value application.RateValue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if value.Source == "" {
		value.Source = "static"
	}
	o.rates[source] = value
}

// GetRate returns the last value set for the source.
func (o *StaticOracle) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	if err := ctx.Err(); err != nil {
		return application.RateValue{}, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	value, ok := o.rates[req.Source]
	if !ok {
		return application.RateValue{}, fmt.Errorf("%w: %s", ErrNoRate, req.Source.Hex())
	}
	return value, nil
}
