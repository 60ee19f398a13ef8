package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irs-settlement/internal/eventing"
	"irs-settlement/internal/eventing/eventbus"
	eventingmemory "irs-settlement/internal/eventing/infrastructure/memory"
	"irs-settlement/internal/swap/application"
	"irs-settlement/internal/swap/application/events"
	swap "irs-settlement/internal/swap/domain"
	"irs-settlement/internal/swap/infrastructure/memory"
	"irs-settlement/internal/swap/infrastructure/oracle"
)

func TestCreateAgreement_MintsObligationTokens(t *testing.T) {
	f := newFixture(t, nil)
	agreement := f.create(t, quarterlyTerms("swap-1"))

	assert.Equal(t, 4, agreement.PeriodCount())
	assert.Equal(t, int64(4), f.tokens("swap-1", payer))
	assert.Equal(t, int64(4), f.tokens("swap-1", receiver))

	_, err := f.service.CreateAgreement(context.Background(), quarterlyTerms("swap-1"))
	require.ErrorIs(t, err, swap.ErrAgreementExists)
	assert.Equal(t, int64(4), f.tokens("swap-1", payer))

	evts := f.store.Events()
	require.Len(t, evts, 1)
	created, ok := evts[0].(events.SwapCreated)
	require.True(t, ok)
	assert.Equal(t, 4, created.Periods)
}

func TestCreateAgreement_GeneratesID(t *testing.T) {
	f := newFixture(t, nil)
	agreement := f.create(t, quarterlyTerms(""))
	assert.Contains(t, agreement.ID(), "swap-")
}

func TestSettlePeriod_PayerPaysNet(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, payer, 1_000_000)
	f.create(t, quarterlyTerms("swap-1"))

	record, err := f.service.SettlePeriod(context.Background(), "swap-1", receiver, firstDue)
	require.NoError(t, err)

	assert.Equal(t, firstDue, record.PaymentDate)
	assert.Equal(t, int64(6250), record.FixedLeg)
	assert.Equal(t, int64(5000), record.FloatingLeg)
	assert.Equal(t, int64(1250), record.Amount)
	assert.Equal(t, int64(200), record.FloatingRate)
	assert.Equal(t, swap.DirectionPayerToReceiver, record.Direction)
	assert.Equal(t, receiver, record.SettledBy)

	assert.Equal(t, int64(1_000_000-1250), f.cash(payer))
	assert.Equal(t, int64(1250), f.cash(receiver))
	assert.Equal(t, int64(3), f.tokens("swap-1", payer))
	assert.Equal(t, int64(3), f.tokens("swap-1", receiver))

	evts := f.store.Events()
	require.Len(t, evts, 2)
	swapEvent, ok := evts[1].(events.Swap)
	require.True(t, ok)
	assert.Equal(t, int64(1250), swapEvent.Amount)
	assert.Equal(t, receiver, swapEvent.Account)

	_, err = f.service.SettlePeriod(context.Background(), "swap-1", receiver, firstDue)
	require.ErrorIs(t, err, swap.ErrNothingDue)
}

func TestSettlePeriod_ReceiverPaysWhenFloatingAboveFixed(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, receiver, 10_000)
	terms := quarterlyTerms("swap-1")
	terms.BenchmarkSource = swap.ManualBenchmark(300)
	f.create(t, terms)

	record, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
	require.NoError(t, err)
	assert.Equal(t, swap.DirectionReceiverToPayer, record.Direction)
	assert.Equal(t, int64(8750), record.FloatingLeg)
	assert.Equal(t, int64(2500), record.Amount)
	assert.Equal(t, int64(2500), f.cash(payer))
	assert.Equal(t, int64(7500), f.cash(receiver))
}

func TestSettlePeriod_ZeroNetStillSettles(t *testing.T) {
	f := newFixture(t, nil)
	terms := quarterlyTerms("swap-1")
	terms.BenchmarkSource = swap.ManualBenchmark(200)
	f.create(t, terms)

	record, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Amount)
	assert.Equal(t, swap.DirectionNone, record.Direction)
	assert.Equal(t, int64(3), f.tokens("swap-1", payer))

	evts := f.store.Events()
	swapEvent := evts[len(evts)-1].(events.Swap)
	assert.Equal(t, int64(0), swapEvent.Amount)
	assert.Equal(t, common.Address{}, swapEvent.Account)
}

func TestSettlePeriod_OldestFirstOnePerCall(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, payer, 1_000_000)
	f.create(t, quarterlyTerms("swap-1"))
	asOf := secondDue.Add(time.Hour)

	first, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, asOf)
	require.NoError(t, err)
	second, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, asOf)
	require.NoError(t, err)
	_, err = f.service.SettlePeriod(context.Background(), "swap-1", payer, asOf)
	require.ErrorIs(t, err, swap.ErrNothingDue)

	assert.Equal(t, firstDue, first.PaymentDate)
	assert.Equal(t, secondDue, second.PaymentDate)
}

func TestSettlePeriod_RejectsWithoutSideEffects(t *testing.T) {
	cases := []struct {
		name    string
		caller  common.Address
		asOf    time.Time
		fund    int64
		failOn  string
		wantErr error
	}{
		{name: "stranger", caller: stranger, asOf: firstDue, fund: 1_000_000, wantErr: swap.ErrUnauthorized},
		{name: "zero caller", caller: common.Address{}, asOf: firstDue, fund: 1_000_000, wantErr: swap.ErrUnauthorized},
		{name: "before first date", caller: payer, asOf: firstDue.Add(-time.Second), fund: 1_000_000, wantErr: swap.ErrNothingDue},
		{name: "unfunded payer", caller: payer, asOf: firstDue, fund: 1000, wantErr: swap.ErrInsufficientBalance},
		{name: "transfer vetoed", caller: payer, asOf: firstDue, fund: 1_000_000, failOn: "transfer", wantErr: swap.ErrTransferRejected},
		{name: "burn fails after transfer", caller: payer, asOf: firstDue, fund: 1_000_000, failOn: "burn", wantErr: swap.ErrBurnFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			failOn := ""
			f := newFixture(t, nil, memory.WithLedgerDecorator(func(l application.Ledger) application.Ledger {
				return failingLedger{Ledger: l, failOn: failOn}
			}))
			f.fund(t, payer, tc.fund)
			f.create(t, quarterlyTerms("swap-1"))
			failOn = tc.failOn

			_, err := f.service.SettlePeriod(context.Background(), "swap-1", tc.caller, tc.asOf)
			require.ErrorIs(t, err, tc.wantErr)

			assert.Equal(t, tc.fund, f.cash(payer))
			assert.Equal(t, int64(0), f.cash(receiver))
			assert.Equal(t, int64(4), f.tokens("swap-1", payer))
			assert.Equal(t, int64(4), f.tokens("swap-1", receiver))
			assert.Len(t, f.store.Events(), 1)

			agreement, err := f.service.Agreement(context.Background(), "swap-1")
			require.NoError(t, err)
			assert.Equal(t, 4, agreement.RemainingPeriods())
			assert.Empty(t, agreement.Settlements())
		})
	}
}

func TestSettlePeriod_UnknownAgreement(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.SettlePeriod(context.Background(), "missing", payer, firstDue)
	require.ErrorIs(t, err, swap.ErrAgreementNotFound)
}

func TestSettlePeriod_OracleFailures(t *testing.T) {
	terms := quarterlyTerms("swap-1")
	terms.BenchmarkSource = swap.OracleBenchmark(feed)

	t.Run("no reading", func(t *testing.T) {
		f := newFixture(t, oracle.NewStaticOracle())
		f.create(t, terms)
		_, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
		require.ErrorIs(t, err, swap.ErrOracleUnavailable)
	})

	t.Run("stale reading", func(t *testing.T) {
		o := oracle.NewStaticOracle()
		o.Set(feed, application.RateValue{Value: 150, Decimals: 2, UpdatedAt: firstDue.Add(-72 * time.Hour)})
		f := newFixture(t, o)
		f.create(t, terms)
		_, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
		require.ErrorIs(t, err, swap.ErrStaleQuote)
		assert.Equal(t, int64(4), f.tokens("swap-1", payer))
	})

	t.Run("slow oracle then recovery", func(t *testing.T) {
		fresh := oracle.NewStaticOracle()
		fresh.Set(feed, application.RateValue{Value: 150, Decimals: 2, UpdatedAt: firstDue.Add(-time.Hour)})
		o := &recoveringOracle{next: fresh}
		f := newFixture(t, o)
		f.fund(t, payer, 1_000_000)
		f.create(t, terms)

		_, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
		require.ErrorIs(t, err, swap.ErrOracleUnavailable)
		agreement, err := f.service.Agreement(context.Background(), "swap-1")
		require.NoError(t, err)
		assert.Equal(t, 4, agreement.RemainingPeriods())
		assert.Empty(t, agreement.Settlements())
		assert.Equal(t, int64(4), f.tokens("swap-1", payer))
		assert.Equal(t, int64(4), f.tokens("swap-1", receiver))
		assert.Equal(t, int64(1_000_000), f.cash(payer))
		assert.Equal(t, int64(0), f.cash(receiver))

		record, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
		require.NoError(t, err)
		assert.Equal(t, firstDue, record.PaymentDate)
		assert.Equal(t, int64(1250), record.Amount)
		assert.Equal(t, 2, o.attempts())
		assert.Equal(t, int64(3), f.tokens("swap-1", payer))
		assert.Equal(t, int64(1_000_000-1250), f.cash(payer))
		assert.Equal(t, int64(1250), f.cash(receiver))
	})

	t.Run("fresh reading with wider decimals", func(t *testing.T) {
		o := oracle.NewStaticOracle()
		o.Set(feed, application.RateValue{Value: 150_000_000, Decimals: 8, UpdatedAt: firstDue.Add(-time.Hour)})
		f := newFixture(t, o)
		f.fund(t, payer, 1_000_000)
		f.create(t, terms)
		record, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
		require.NoError(t, err)
		assert.Equal(t, int64(150), record.Benchmark)
		assert.Equal(t, int64(1250), record.Amount)
	})
}

type blockingOracle struct{}

func (blockingOracle) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	<-ctx.Done()
	return application.RateValue{}, ctx.Err()
}

// recoveringOracle blocks until the deadline on its first call and serves
// readings from next afterwards.
type recoveringOracle struct {
	mu    sync.Mutex
	calls int
	next  application.Oracle
}

func (o *recoveringOracle) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	o.mu.Lock()
	o.calls++
	first := o.calls == 1
	o.mu.Unlock()
	if first {
		<-ctx.Done()
		return application.RateValue{}, ctx.Err()
	}
	return o.next.GetRate(ctx, req)
}

func (o *recoveringOracle) attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func TestTerminate(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, payer, 1_000_000)
	f.create(t, quarterlyTerms("swap-1"))
	_, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
	require.NoError(t, err)

	_, err = f.service.Terminate(context.Background(), "swap-1", stranger, time.Time{})
	require.ErrorIs(t, err, swap.ErrUnauthorized)

	at := firstDue.Add(24 * time.Hour)
	agreement, err := f.service.Terminate(context.Background(), "swap-1", receiver, at)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusTerminated, agreement.Status())
	assert.Equal(t, receiver, agreement.TerminatedBy())
	assert.Equal(t, at, agreement.TerminatedAt())
	assert.Equal(t, int64(0), f.tokens("swap-1", payer))
	assert.Equal(t, int64(0), f.tokens("swap-1", receiver))
	assert.Len(t, agreement.Settlements(), 1)

	evts := f.store.Events()
	terminated, ok := evts[len(evts)-1].(events.TerminateSwap)
	require.True(t, ok)
	assert.Equal(t, payer, terminated.Payer)
	assert.Equal(t, receiver, terminated.Receiver)

	_, err = f.service.Terminate(context.Background(), "swap-1", payer, at)
	require.ErrorIs(t, err, swap.ErrNotActive)
	_, err = f.service.Terminate(context.Background(), "swap-1", stranger, at)
	require.ErrorIs(t, err, swap.ErrUnauthorized)
	_, err = f.service.SettlePeriod(context.Background(), "swap-1", payer, maturity)
	require.ErrorIs(t, err, swap.ErrNotActive)
	assert.Len(t, f.store.Events(), len(evts))
}

func TestSettlePeriod_ConcurrentCallersSettleEachPeriodOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, payer, 1_000_000)
	f.create(t, quarterlyTerms("swap-1"))

	const callers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled []time.Time
		nothing int
	)
	for i := 0; i < callers; i++ {
		caller := payer
		if i%2 == 1 {
			caller = receiver
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := f.service.SettlePeriod(context.Background(), "swap-1", caller, maturity)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, swap.ErrNothingDue)
				nothing++
				return
			}
			settled = append(settled, record.PaymentDate)
		}()
	}
	wg.Wait()

	assert.Len(t, settled, 4)
	assert.Equal(t, callers-4, nothing)
	assert.Equal(t, int64(4*1250), f.cash(receiver))
	assert.Equal(t, int64(0), f.tokens("swap-1", payer))
}

func TestSettlePeriod_AccountingIdentity(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, payer, 1_000_000)
	terms := quarterlyTerms("swap-1")
	terms.DayCount = swap.DayCountACT365F
	terms.Notional = 7_777_777
	terms.FixedRate = 333
	f.create(t, terms)

	var fixed, floating int64
	for i := 0; i < 4; i++ {
		record, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, maturity)
		require.NoError(t, err)
		fixed += record.FixedLeg
		floating += record.FloatingLeg
	}
	assert.Equal(t, fixed-floating, f.cash(receiver))
	assert.Equal(t, int64(1_000_000)-(fixed-floating), f.cash(payer))
}

func TestObligations(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, payer, 10_000)
	f.create(t, quarterlyTerms("swap-1"))
	_, err := f.service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
	require.NoError(t, err)

	status, err := f.service.Obligations(context.Background(), "swap-1")
	require.NoError(t, err)
	assert.Equal(t, 3, status.RemainingPeriods)
	assert.Equal(t, int64(3), status.Payer.ObligationTokens)
	assert.Equal(t, int64(8750), status.Payer.AssetBalance)
	assert.Equal(t, int64(1250), status.Receiver.AssetBalance)
	assert.Equal(t, swap.StatusActive, status.Status)
}

func TestEnsureAgreements_SkipsExisting(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, quarterlyTerms("swap-1"))
	created, err := f.service.EnsureAgreements(context.Background(), []swap.Terms{quarterlyTerms("swap-1"), quarterlyTerms("swap-2")})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	list, err := f.service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "swap-1", list[0].ID())
}

func TestSettlePeriod_DispatchesToSubscribers(t *testing.T) {
	outbox := eventingmemory.NewOutboxStore()
	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry(events.All()...)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, nil, nil)

	var received []events.Swap
	bus.Subscribe(eventbus.EventTypeOf[events.Swap](), eventbus.Handle(func(ctx context.Context, evt events.Swap) error {
		received = append(received, evt)
		return nil
	}))

	resolver, err := application.NewRateResolver(nil, time.Hour)
	require.NoError(t, err)
	store := memory.NewStore(memory.WithOutbox(outbox, "tenant-a"))
	service, err := application.NewSettlementService(store, resolver, application.WithDispatcher(dispatcher))
	require.NoError(t, err)

	require.NoError(t, store.Seed(application.AssetKey(asset), payer, 1_000_000))
	_, err = service.CreateAgreement(context.Background(), quarterlyTerms("swap-1"))
	require.NoError(t, err)
	_, err = service.SettlePeriod(context.Background(), "swap-1", payer, firstDue)
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "swap-1", received[0].AgreementID)
	assert.Equal(t, int64(1250), received[0].Amount)

	envelopes := outbox.Envelopes()
	require.Len(t, envelopes, 2)
	assert.Equal(t, "swap-1", envelopes[1].AgreementID)
	assert.Equal(t, "tenant-a", envelopes[1].TenantID)
}
