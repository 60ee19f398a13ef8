package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"irs-settlement/internal/eventing"
	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
)

type balances map[string]map[common.Address]int64

func (b balances) clone() balances {
	out := make(balances, len(b))
	for asset, accounts := range b {
		copied := make(map[common.Address]int64, len(accounts))
		for account, amount := range accounts {
			copied[account] = amount
		}
		out[asset] = copied
	}
	return out
}

// Store keeps agreements, ledger balances and committed events in memory.
// Units of work run one at a time and roll back by restoring a copy of the
// state taken when they started.
type Store struct {
	mu         sync.Mutex
	agreements map[string]swap.Snapshot
	balances   balances
	committed  []any

	outbox     eventing.OutboxWriter
	tenantID   string
	wrapLedger func(application.Ledger) application.Ledger
}

// Option configures a Store.
type Option func(*Store)

// WithOutbox writes committed events to outbox inside the unit of work.
func WithOutbox(outbox eventing.OutboxWriter, tenantID string) Option {
	return func(s *Store) {
		s.outbox = outbox
		s.tenantID = tenantID
	}
}

// WithLedgerDecorator wraps the ledger handed to each unit of work.
func WithLedgerDecorator(wrap func(application.Ledger) application.Ledger) Option {
	return func(s *Store) {
		s.wrapLedger = wrap
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		agreements: make(map[string]swap.Snapshot),
		balances:   make(balances),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn atomically against the store.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	savedAgreements := make(map[string]swap.Snapshot, len(s.agreements))
	for id, snap := range s.agreements {
		savedAgreements[id] = snap
	}
	savedBalances := s.balances.clone()
	rollback := func() {
		s.agreements = savedAgreements
		s.balances = savedBalances
	}

	var ledger application.Ledger = &Ledger{balances: s.balances}
	if s.wrapLedger != nil {
		ledger = s.wrapLedger(ledger)
	}
	buffer := &eventBuffer{}
	tx := application.Tx{
		Agreements: &Repository{agreements: s.agreements},
		Ledger:     ledger,
		Events:     buffer,
	}
	if err := fn(ctx, tx); err != nil {
		rollback()
		return err
	}
	if s.outbox != nil && len(buffer.events) > 0 {
		sink := eventing.NewSink(s.outbox, s.tenantID)
		for _, event := range buffer.events {
			if err := sink.Append(ctx, event); err != nil {
				rollback()
				return err
			}
		}
	}
	s.committed = append(s.committed, buffer.events...)
	return nil
}

// Seed credits amount of asset to account outside any agreement, for
// funding counterparties.
func (s *Store) Seed(asset string, account common.Address, amount int64) error {
	return s.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Ledger.Mint(ctx, asset, account, amount)
	})
}

// Balance returns the balance of account in asset.
func (s *Store) Balance(asset string, account common.Address) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[asset][account]
}

// Events returns every committed event in order.
func (s *Store) Events() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.committed))
	copy(out, s.committed)
	return out
}

type eventBuffer struct {
	events []any
}

func (b *eventBuffer) Append(ctx context.Context, event any) error {
	b.events = append(b.events, event)
	return nil
}
