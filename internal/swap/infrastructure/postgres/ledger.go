package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
)

const (
	entryTransfer = "transfer"
	entryMint     = "mint"
	entryBurn     = "burn"
)

// Ledger keeps balances in ledger_balances and journals every movement in
// ledger_entries. Balances never go negative.
type Ledger struct {
	db DBTX
}

// NewLedger constructs a ledger over db.
func NewLedger(db DBTX) *Ledger {
	return &Ledger{db: db}
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(ctx context.Context, asset string, account common.Address) (int64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("ledger: nil db")
	}
	var balance int64
	err := l.db.QueryRowContext(ctx, `
SELECT balance FROM ledger_balances WHERE asset = $1 AND account = $2`, asset, account.Hex()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// Transfer moves amount between accounts.
func (l *Ledger) Transfer(ctx context.Context, asset string, from, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", application.ErrInvalidAmount, amount)
	}
	if err := l.debit(ctx, asset, from, amount); err != nil {
		return err
	}
	if err := l.credit(ctx, asset, to, amount); err != nil {
		return err
	}
	return l.journal(ctx, entryTransfer, asset, from, to, amount)
}

// Mint credits amount to account.
func (l *Ledger) Mint(ctx context.Context, asset string, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", application.ErrInvalidAmount, amount)
	}
	if err := l.credit(ctx, asset, to, amount); err != nil {
		return err
	}
	return l.journal(ctx, entryMint, asset, common.Address{}, to, amount)
}

// Burn removes amount from account.
func (l *Ledger) Burn(ctx context.Context, asset string, from common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", application.ErrInvalidAmount, amount)
	}
	if err := l.debit(ctx, asset, from, amount); err != nil {
		return err
	}
	return l.journal(ctx, entryBurn, asset, from, common.Address{}, amount)
}

func (l *Ledger) debit(ctx context.Context, asset string, account common.Address, amount int64) error {
	if l == nil || l.db == nil {
		return errors.New("ledger: nil db")
	}
	res, err := l.db.ExecContext(ctx, `
UPDATE ledger_balances
SET balance = balance - $3, updated_at = $4
WHERE asset = $1 AND account = $2 AND balance >= $3`, asset, account.Hex(), amount, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s cannot cover %d of %s", swap.ErrInsufficientBalance, account.Hex(), amount, asset)
	}
	return nil
}

func (l *Ledger) credit(ctx context.Context, asset string, account common.Address, amount int64) error {
	if l == nil || l.db == nil {
		return errors.New("ledger: nil db")
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO ledger_balances (asset, account, balance, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (asset, account)
DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		asset, account.Hex(), amount, time.Now().UTC())
	return err
}

func (l *Ledger) journal(ctx context.Context, kind, asset string, from, to common.Address, amount int64) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO ledger_entries (id, kind, asset, from_account, to_account, amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), kind, asset, nullableAddress(from), nullableAddress(to), amount, time.Now().UTC())
	return err
}
