package swap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of an agreement.
type Status string

const (
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
)

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusTerminated
}

// IsCounterparty reports whether addr is the payer or the receiver.
func (a *Agreement) IsCounterparty(addr common.Address) bool {
	return addr == a.terms.Payer || addr == a.terms.Receiver
}

// AuthorizeCounterparty fails with ErrUnauthorized for anyone but the two parties.
func (a *Agreement) AuthorizeCounterparty(caller common.Address) error {
	if caller == (common.Address{}) || !a.IsCounterparty(caller) {
		return ErrUnauthorized
	}
	return nil
}

// EnsureActive fails with ErrNotActive once the agreement is terminated.
func (a *Agreement) EnsureActive() error {
	if a.status != StatusActive {
		return ErrNotActive
	}
	return nil
}

// Terminate ends the agreement. Settled periods stay settled and a pending
// period is not settled implicitly.
func (a *Agreement) Terminate(caller common.Address, at time.Time) error {
	if err := a.AuthorizeCounterparty(caller); err != nil {
		return err
	}
	if err := a.EnsureActive(); err != nil {
		return err
	}
	a.status = StatusTerminated
	a.terminatedBy = caller
	a.terminatedAt = at.UTC()
	return nil
}
