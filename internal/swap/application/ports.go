package application

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"irs-settlement/internal/eventing"
	swap "irs-settlement/internal/swap/domain"
)

// ErrInvalidAmount is returned by ledgers for non-positive amounts.
var ErrInvalidAmount = errors.New("ledger: invalid amount")

// Ledger moves value between accounts. Assets are identified by string keys:
// the hex address of a settlement asset or an agreement's obligation asset.
// Implementations report missing funds with swap.ErrInsufficientBalance.
type Ledger interface {
	BalanceOf(ctx context.Context, asset string, account common.Address) (int64, error)
	Transfer(ctx context.Context, asset string, from, to common.Address, amount int64) error
	Mint(ctx context.Context, asset string, to common.Address, amount int64) error
	Burn(ctx context.Context, asset string, from common.Address, amount int64) error
}

// RateRequest asks an oracle for the benchmark published by Source.
type RateRequest struct {
	Source    common.Address
	Benchmark string
	AsOf      time.Time
}

// RateValue is a raw oracle reading.
type RateValue struct {
	Value     int64
	Decimals  uint8
	UpdatedAt time.Time
	Source    string
}

// Oracle reads benchmark rates.
type Oracle interface {
	GetRate(ctx context.Context, req RateRequest) (RateValue, error)
}

// EventSink collects events written as part of a unit of work.
type EventSink interface {
	Append(ctx context.Context, event any) error
}

// Tx exposes the stores bound to one unit of work.
type Tx struct {
	Agreements swap.Repository
	Ledger     Ledger
	Events     EventSink
}

// UnitOfWork runs fn atomically. Any error returned by fn discards every
// change fn made through tx.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Dispatcher delivers committed outbox events.
type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) (eventing.DispatchResult, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// AssetKey is the ledger key of a settlement asset.
func AssetKey(asset common.Address) string {
	return asset.Hex()
}
