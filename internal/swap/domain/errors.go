package swap

import "errors"

var (
	// ErrUnauthorized is returned when the caller is neither payer nor receiver.
	ErrUnauthorized = errors.New("swap: unauthorized")
	// ErrNotActive is returned when the agreement is no longer active.
	ErrNotActive = errors.New("swap: agreement not active")
	// ErrNothingDue is returned when no payment date is due.
	ErrNothingDue = errors.New("swap: nothing due")
	// ErrAlreadySettled is returned when a payment date was settled before.
	ErrAlreadySettled = errors.New("swap: already settled")
	// ErrUnknownDate is returned when a date is not part of the schedule.
	ErrUnknownDate = errors.New("swap: unknown payment date")
	// ErrOracleUnavailable is returned when the benchmark cannot be fetched.
	ErrOracleUnavailable = errors.New("swap: oracle unavailable")
	// ErrStaleQuote is returned when the oracle observation is too old or
	// later than the requested as-of time.
	ErrStaleQuote = errors.New("swap: stale quote")
	// ErrArithmeticOverflow is returned when a value leaves the int64 range.
	ErrArithmeticOverflow = errors.New("swap: arithmetic overflow")
	// ErrInsufficientBalance is returned when the owing party cannot pay.
	ErrInsufficientBalance = errors.New("swap: insufficient balance")
	// ErrTransferRejected is returned when the ledger rejects a transfer.
	ErrTransferRejected = errors.New("swap: transfer rejected")
	// ErrBurnFailed is returned when obligation tokens cannot be burned.
	ErrBurnFailed = errors.New("swap: burn failed")

	// ErrInvalidTerms is returned when agreement terms fail validation.
	ErrInvalidTerms = errors.New("swap: invalid terms")
	// ErrNilAggregate is returned when saving a nil aggregate.
	ErrNilAggregate = errors.New("swap: nil aggregate")
	// ErrAgreementNotFound is returned when an agreement does not exist.
	ErrAgreementNotFound = errors.New("swap: agreement not found")
	// ErrAgreementExists is returned when creating a duplicate agreement.
	ErrAgreementExists = errors.New("swap: agreement already exists")
)
