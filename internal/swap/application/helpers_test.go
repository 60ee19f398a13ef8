package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
	"irs-settlement/internal/swap/infrastructure/memory"
)

var (
	payer    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	receiver = common.HexToAddress("0x2000000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x3000000000000000000000000000000000000003")
	asset    = common.HexToAddress("0x4000000000000000000000000000000000000004")
	feed     = common.HexToAddress("0x5000000000000000000000000000000000000005")

	start    = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maturity = start.AddDate(0, 0, 360)
	quarter  = 90 * 24 * time.Hour

	firstDue  = start.Add(quarter)
	secondDue = start.Add(2 * quarter)
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// quarterlyTerms books 1,000,000 at 2.50% fixed against 1.50% + 0.50% floating,
// ACT/360 with four 90-day periods: each period nets 1250 payer to receiver.
func quarterlyTerms(id string) swap.Terms {
	return swap.Terms{
		ID:              id,
		Payer:           payer,
		Receiver:        receiver,
		Asset:           asset,
		Notional:        1_000_000,
		FixedRate:       250,
		Spread:          50,
		RatesDecimals:   2,
		Benchmark:       "SOFR",
		BenchmarkSource: swap.ManualBenchmark(150),
		Schedule:        swap.FrequencySchedule(quarter),
		StartingDate:    start,
		MaturityDate:    maturity,
		DayCount:        swap.DayCountACT360,
	}
}

type fixture struct {
	store   *memory.Store
	service *application.SettlementService
}

func newFixture(t *testing.T, oracle application.Oracle, storeOpts ...memory.Option) fixture {
	t.Helper()
	resolver, err := application.NewRateResolver(oracle, 24*time.Hour, application.WithOracleTimeout(50*time.Millisecond))
	require.NoError(t, err)
	store := memory.NewStore(storeOpts...)
	service, err := application.NewSettlementService(store, resolver, application.WithClock(fixedClock{now: start}))
	require.NoError(t, err)
	return fixture{store: store, service: service}
}

func (f fixture) fund(t *testing.T, account common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.store.Seed(application.AssetKey(asset), account, amount))
}

func (f fixture) create(t *testing.T, terms swap.Terms) *swap.Agreement {
	t.Helper()
	agreement, err := f.service.CreateAgreement(context.Background(), terms)
	require.NoError(t, err)
	return agreement
}

func (f fixture) tokens(id string, account common.Address) int64 {
	return f.store.Balance(swap.ObligationAsset(id), account)
}

func (f fixture) cash(account common.Address) int64 {
	return f.store.Balance(application.AssetKey(asset), account)
}

// failingLedger fails the first call of the named operation.
type failingLedger struct {
	application.Ledger
	failOn string
}

func (l failingLedger) Burn(ctx context.Context, a string, from common.Address, amount int64) error {
	if l.failOn == "burn" {
		return errors.New("ledger node unreachable")
	}
	return l.Ledger.Burn(ctx, a, from, amount)
}

func (l failingLedger) Transfer(ctx context.Context, a string, from, to common.Address, amount int64) error {
	if l.failOn == "transfer" {
		return errors.New("transfer vetoed")
	}
	return l.Ledger.Transfer(ctx, a, from, to, amount)
}
