package swap

import (
	"fmt"
	"math"
	"time"
)

// RateQuote is the floating rate resolved for one settlement.
type RateQuote struct {
	Benchmark    int64
	Spread       int64
	FloatingRate int64
	Decimals     uint8
	ObservedAt   time.Time
	Source       string
}

// NewRateQuote builds a quote with floatingRate = benchmark + spread.
func NewRateQuote(benchmark, spread int64, decimals uint8, observedAt time.Time, source string) (RateQuote, error) {
	floating, err := AddRates(benchmark, spread)
	if err != nil {
		return RateQuote{}, err
	}
	return RateQuote{
		Benchmark:    benchmark,
		Spread:       spread,
		FloatingRate: floating,
		Decimals:     decimals,
		ObservedAt:   observedAt,
		Source:       source,
	}, nil
}

// AddRates adds two fixed-point rates with overflow detection.
func AddRates(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return a + b, nil
}

// Rescale converts value from one decimals base to another. Scaling down
// truncates toward zero.
func Rescale(value int64, from, to uint8) (int64, error) {
	if from > MaxRatesDecimals || to > MaxRatesDecimals {
		return 0, fmt.Errorf("%w: rates decimals above %d", ErrInvalidTerms, MaxRatesDecimals)
	}
	for from < to {
		if value > math.MaxInt64/10 || value < math.MinInt64/10 {
			return 0, fmt.Errorf("%w: rescale %d", ErrArithmeticOverflow, value)
		}
		value *= 10
		from++
	}
	for from > to {
		value /= 10
		from--
	}
	return value, nil
}
