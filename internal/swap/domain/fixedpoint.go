package swap

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseFixed converts a decimal string such as "2.50" into a fixed-point
// integer with the given number of decimals. Inputs with more precision than
// decimals are rejected instead of rounded.
func ParseFixed(value string, decimals uint8) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty decimal", ErrInvalidTerms)
	}
	if decimals > MaxRatesDecimals {
		return 0, fmt.Errorf("%w: rates decimals above %d", ErrInvalidTerms, MaxRatesDecimals)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal", ErrInvalidTerms, value)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidTerms, value, decimals)
	}
	n := shifted.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrArithmeticOverflow, value)
	}
	return n.Int64(), nil
}

// FormatFixed renders a fixed-point integer as a decimal string.
func FormatFixed(value int64, decimals uint8) string {
	return decimal.New(value, -int32(decimals)).StringFixed(int32(decimals))
}
