package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
)

// Ledger is the in-memory ledger view of a unit of work.
type Ledger struct {
	balances balances
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(ctx context.Context, asset string, account common.Address) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.balances[asset][account], nil
}

// Transfer moves amount between accounts.
func (l *Ledger) Transfer(ctx context.Context, asset string, from, to common.Address, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", application.ErrInvalidAmount, amount)
	}
	if from == to {
		return nil
	}
	if err := l.debit(asset, from, amount); err != nil {
		return err
	}
	return l.credit(asset, to, amount)
}

// Mint credits amount to account.
func (l *Ledger) Mint(ctx context.Context, asset string, to common.Address, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", application.ErrInvalidAmount, amount)
	}
	return l.credit(asset, to, amount)
}

// Burn removes amount from account.
func (l *Ledger) Burn(ctx context.Context, asset string, from common.Address, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", application.ErrInvalidAmount, amount)
	}
	return l.debit(asset, from, amount)
}

func (l *Ledger) debit(asset string, account common.Address, amount int64) error {
	current := l.balances[asset][account]
	if current < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", swap.ErrInsufficientBalance, account.Hex(), current, asset, amount)
	}
	l.balances[asset][account] = current - amount
	return nil
}

func (l *Ledger) credit(asset string, account common.Address, amount int64) error {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[common.Address]int64)
		l.balances[asset] = accounts
	}
	if accounts[account] > math.MaxInt64-amount {
		return fmt.Errorf("%w: balance of %s", swap.ErrArithmeticOverflow, account.Hex())
	}
	accounts[account] += amount
	return nil
}
