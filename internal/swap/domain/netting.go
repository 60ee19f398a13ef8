package swap

import (
	"fmt"
	"math/big"
)

// Direction tells who pays whom for a period.
type Direction int

const (
	// DirectionNone means the legs cancel out and no value moves.
	DirectionNone Direction = iota
	// DirectionPayerToReceiver means the fixed-rate payer owes the difference.
	DirectionPayerToReceiver
	// DirectionReceiverToPayer means the floating-rate payer owes the difference.
	DirectionReceiverToPayer
)

// String returns the wire name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionPayerToReceiver:
		return "payer_to_receiver"
	case DirectionReceiverToPayer:
		return "receiver_to_payer"
	default:
		return "none"
	}
}

// ParseDirection maps a wire name back to a Direction.
func ParseDirection(value string) (Direction, error) {
	switch value {
	case "payer_to_receiver":
		return DirectionPayerToReceiver, nil
	case "receiver_to_payer":
		return DirectionReceiverToPayer, nil
	case "none", "":
		return DirectionNone, nil
	default:
		return DirectionNone, fmt.Errorf("swap: unknown direction %q", value)
	}
}

// Netting is the outcome of one period.
type Netting struct {
	FixedLeg    int64
	FloatingLeg int64
	Net         int64 // FixedLeg - FloatingLeg
	Amount      int64 // |Net|
	Direction   Direction
}

// ComputeNet nets the fixed and floating legs of one period.
//
// Rates are percentages in a 10^ratesDecimals fixed-point base, so a leg is
// notional * rate * fraction / (100 * 10^ratesDecimals). Products are formed
// in arbitrary precision and each leg is truncated toward zero once, after the
// final division. The net is the difference of the truncated legs, which keeps
// sum(fixed) - sum(floating) equal to the value moved.
func ComputeNet(notional, fixedRate, floatingRate int64, ratesDecimals uint8, fraction YearFraction) (Netting, error) {
	if notional <= 0 {
		return Netting{}, fmt.Errorf("%w: notional must be positive", ErrInvalidTerms)
	}
	if fraction.Den <= 0 || fraction.Num < 0 {
		return Netting{}, fmt.Errorf("%w: invalid year fraction", ErrInvalidTerms)
	}
	if ratesDecimals > MaxRatesDecimals {
		return Netting{}, fmt.Errorf("%w: rates decimals above %d", ErrInvalidTerms, MaxRatesDecimals)
	}

	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(ratesDecimals)), nil)
	den.Mul(den, big.NewInt(100))
	den.Mul(den, big.NewInt(fraction.Den))

	fixed, err := legAmount(notional, fixedRate, fraction.Num, den)
	if err != nil {
		return Netting{}, err
	}
	floating, err := legAmount(notional, floatingRate, fraction.Num, den)
	if err != nil {
		return Netting{}, err
	}

	net := new(big.Int).Sub(big.NewInt(fixed), big.NewInt(floating))
	if !net.IsInt64() {
		return Netting{}, fmt.Errorf("%w: net amount", ErrArithmeticOverflow)
	}
	amount := new(big.Int).Abs(net)
	if !amount.IsInt64() {
		return Netting{}, fmt.Errorf("%w: net amount", ErrArithmeticOverflow)
	}

	result := Netting{
		FixedLeg:    fixed,
		FloatingLeg: floating,
		Net:         net.Int64(),
		Amount:      amount.Int64(),
	}
	switch net.Sign() {
	case 1:
		result.Direction = DirectionPayerToReceiver
	case -1:
		result.Direction = DirectionReceiverToPayer
	default:
		result.Direction = DirectionNone
	}
	return result, nil
}

func legAmount(notional, rate, fractionNum int64, den *big.Int) (int64, error) {
	value := new(big.Int).Mul(big.NewInt(notional), big.NewInt(rate))
	value.Mul(value, big.NewInt(fractionNum))
	// Quo truncates toward zero.
	value.Quo(value, den)
	if !value.IsInt64() {
		return 0, fmt.Errorf("%w: leg amount", ErrArithmeticOverflow)
	}
	return value.Int64(), nil
}
