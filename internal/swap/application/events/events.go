package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Swap is emitted for every settled period. Account receives Amount; it is
// the zero address when the legs cancel out.
type Swap struct {
	AgreementID string         `json:"agreement_id"`
	PaymentDate time.Time      `json:"payment_date"`
	Amount      int64          `json:"amount"`
	Account     common.Address `json:"account"`
	From        common.Address `json:"from"`
	Direction   string         `json:"direction"`
	SettledBy   common.Address `json:"settled_by"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// TerminateSwap is emitted once when an agreement is terminated.
type TerminateSwap struct {
	AgreementID  string         `json:"agreement_id"`
	Payer        common.Address `json:"payer"`
	Receiver     common.Address `json:"receiver"`
	TerminatedBy common.Address `json:"terminated_by"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// SwapCreated is emitted when an agreement is booked.
type SwapCreated struct {
	AgreementID string         `json:"agreement_id"`
	Payer       common.Address `json:"payer"`
	Receiver    common.Address `json:"receiver"`
	Asset       common.Address `json:"asset"`
	Notional    int64          `json:"notional"`
	Periods     int            `json:"periods"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// All returns a sample of every event type, for registries.
func All() []any {
	return []any{Swap{}, TerminateSwap{}, SwapCreated{}}
}
