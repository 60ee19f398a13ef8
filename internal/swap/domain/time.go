package swap

import "time"

// PaymentKey is the persisted representation of a payment date.
type PaymentKey string

// NewPaymentKey builds a PaymentKey for the given payment date.
func NewPaymentKey(date time.Time) (PaymentKey, error) {
	if date.IsZero() {
		return "", ErrUnknownDate
	}
	return PaymentKey(normalizeDate(date).Format("20060102T150405Z")), nil
}

// String returns the raw string for storage.
func (k PaymentKey) String() string { return string(k) }
