package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"irs-settlement/internal/eventing"
	"irs-settlement/internal/observability/metrics"
	"irs-settlement/internal/swap/application/events"
	swap "irs-settlement/internal/swap/domain"
)

// DefaultLedgerTimeout bounds a single ledger call.
const DefaultLedgerTimeout = 5 * time.Second

// SettlementService runs the agreement use cases. Calls for the same
// agreement are serialized; different agreements proceed in parallel.
type SettlementService struct {
	uow           UnitOfWork
	rates         *RateResolver
	dispatcher    Dispatcher
	clock         Clock
	logger        *zap.Logger
	ledgerTimeout time.Duration
	locks         *keyLock
}

// Option configures a SettlementService.
type Option func(*SettlementService)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *SettlementService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SettlementService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher delivers outbox events after every committed operation.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(s *SettlementService) {
		s.dispatcher = dispatcher
	}
}

// WithLedgerTimeout overrides the per-call ledger timeout.
func WithLedgerTimeout(timeout time.Duration) Option {
	return func(s *SettlementService) {
		if timeout > 0 {
			s.ledgerTimeout = timeout
		}
	}
}

// NewSettlementService constructs the service.
func NewSettlementService(uow UnitOfWork, rates *RateResolver, opts ...Option) (*SettlementService, error) {
	if uow == nil {
		return nil, errors.New("settlement service: nil unit of work")
	}
	if rates == nil {
		return nil, errors.New("settlement service: nil rate resolver")
	}
	s := &SettlementService{
		uow:           uow,
		rates:         rates,
		clock:         SystemClock{},
		logger:        zap.NewNop(),
		ledgerTimeout: DefaultLedgerTimeout,
		locks:         newKeyLock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAgreement books an agreement and mints one obligation token per
// scheduled period to each counterparty. An empty terms.ID gets a generated id.
func (s *SettlementService) CreateAgreement(ctx context.Context, terms swap.Terms) (*swap.Agreement, error) {
	if terms.ID == "" {
		terms.ID = "swap-" + uuid.NewString()
	}
	agreement, err := swap.NewAgreement(terms, s.clock.Now())
	if err != nil {
		metrics.IncAgreementCreated(metrics.ResultError)
		return nil, err
	}
	unlock := s.locks.Lock(agreement.ID())
	defer unlock()

	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Agreements.Get(ctx, agreement.ID()); err == nil {
			return fmt.Errorf("%w: %s", swap.ErrAgreementExists, agreement.ID())
		} else if !errors.Is(err, swap.ErrAgreementNotFound) {
			return err
		}
		if err := tx.Agreements.Save(ctx, agreement); err != nil {
			return err
		}
		periods := int64(agreement.PeriodCount())
		for _, party := range []common.Address{agreement.FixedInterestPayer(), agreement.FloatingInterestPayer()} {
			if err := s.withLedger(ctx, func(ctx context.Context) error {
				return tx.Ledger.Mint(ctx, agreement.ObligationAsset(), party, periods)
			}); err != nil {
				return fmt.Errorf("mint obligation tokens to %s: %w", party.Hex(), err)
			}
		}
		return tx.Events.Append(ctx, events.SwapCreated{
			AgreementID: agreement.ID(),
			Payer:       agreement.FixedInterestPayer(),
			Receiver:    agreement.FloatingInterestPayer(),
			Asset:       agreement.AssetContract(),
			Notional:    agreement.NotionalAmount(),
			Periods:     agreement.PeriodCount(),
			OccurredAt:  agreement.CreatedAt(),
		})
	})
	if err != nil {
		metrics.IncAgreementCreated(metrics.ResultError)
		return nil, err
	}
	metrics.IncAgreementCreated(metrics.ResultSuccess)
	s.logger.Info("agreement created",
		zap.String("agreement_id", agreement.ID()),
		zap.Int("periods", agreement.PeriodCount()),
	)
	s.dispatch(ctx)
	return agreement, nil
}

// SettlePeriod settles the oldest unsettled payment date due at asOf. Only
// one period is settled per call.
func (s *SettlementService) SettlePeriod(ctx context.Context, agreementID string, caller common.Address, asOf time.Time) (swap.PeriodSettlement, error) {
	start := time.Now()
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	unlock := s.locks.Lock(agreementID)
	defer unlock()

	var record swap.PeriodSettlement
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		agreement, err := tx.Agreements.Get(ctx, agreementID)
		if err != nil {
			return err
		}
		if err := agreement.AuthorizeCounterparty(caller); err != nil {
			return err
		}
		if err := agreement.EnsureActive(); err != nil {
			return err
		}
		date, ok := agreement.NextDueDate(asOf)
		if !ok {
			return fmt.Errorf("%w: as of %s", swap.ErrNothingDue, asOf.UTC().Format(time.RFC3339))
		}

		quote, err := s.rates.Resolve(ctx, agreement, asOf)
		if err != nil {
			return err
		}
		periodStart, periodEnd, fraction, err := agreement.PeriodFraction(date)
		if err != nil {
			return err
		}
		netting, err := swap.ComputeNet(agreement.NotionalAmount(), agreement.SwapRate(), quote.FloatingRate, agreement.RatesDecimals(), fraction)
		if err != nil {
			return err
		}

		from, to := agreement.Parties(netting.Direction)
		if netting.Amount != 0 {
			if err := s.transfer(ctx, tx.Ledger, AssetKey(agreement.AssetContract()), from, to, netting.Amount); err != nil {
				return err
			}
		}
		for _, party := range []common.Address{agreement.FixedInterestPayer(), agreement.FloatingInterestPayer()} {
			if err := s.burn(ctx, tx.Ledger, agreement.ObligationAsset(), party, 1); err != nil {
				return err
			}
		}

		record = swap.PeriodSettlement{
			PaymentDate:     date,
			PeriodStart:     periodStart,
			PeriodEnd:       periodEnd,
			FixedRate:       agreement.SwapRate(),
			Benchmark:       quote.Benchmark,
			Spread:          quote.Spread,
			FloatingRate:    quote.FloatingRate,
			QuoteObservedAt: quote.ObservedAt,
			QuoteSource:     quote.Source,
			FixedLeg:        netting.FixedLeg,
			FloatingLeg:     netting.FloatingLeg,
			Net:             netting.Net,
			Amount:          netting.Amount,
			Direction:       netting.Direction,
			From:            from,
			To:              to,
			SettledBy:       caller,
			SettledAt:       s.clock.Now(),
		}
		if err := agreement.RecordSettlement(record); err != nil {
			return err
		}
		if err := tx.Agreements.Save(ctx, agreement); err != nil {
			return err
		}
		return tx.Events.Append(ctx, events.Swap{
			AgreementID: agreement.ID(),
			PaymentDate: date,
			Amount:      netting.Amount,
			Account:     to,
			From:        from,
			Direction:   netting.Direction.String(),
			SettledBy:   caller,
			OccurredAt:  record.SettledAt,
		})
	})
	if err != nil {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start))
		s.logger.Info("settlement rejected",
			zap.String("agreement_id", agreementID),
			zap.String("caller", caller.Hex()),
			zap.Time("as_of", asOf),
			zap.Error(err),
		)
		return swap.PeriodSettlement{}, err
	}

	metrics.ObserveSettlement(metrics.ResultSuccess, time.Since(start))
	metrics.AddSettledAmount(record.Direction.String(), record.Amount)
	s.logger.Info("period settled",
		zap.String("agreement_id", agreementID),
		zap.Time("payment_date", record.PaymentDate),
		zap.Int64("net", record.Net),
		zap.String("direction", record.Direction.String()),
	)
	s.dispatch(ctx)
	return record, nil
}

// Terminate ends an agreement and burns the obligation tokens still held by
// both counterparties. A zero at uses the service clock.
func (s *SettlementService) Terminate(ctx context.Context, agreementID string, caller common.Address, at time.Time) (*swap.Agreement, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	unlock := s.locks.Lock(agreementID)
	defer unlock()

	var terminated *swap.Agreement
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		agreement, err := tx.Agreements.Get(ctx, agreementID)
		if err != nil {
			return err
		}
		if err := agreement.Terminate(caller, at); err != nil {
			return err
		}
		for _, party := range []common.Address{agreement.FixedInterestPayer(), agreement.FloatingInterestPayer()} {
			var outstanding int64
			if err := s.withLedger(ctx, func(ctx context.Context) error {
				var err error
				outstanding, err = tx.Ledger.BalanceOf(ctx, agreement.ObligationAsset(), party)
				return err
			}); err != nil {
				return fmt.Errorf("%w: %v", swap.ErrBurnFailed, err)
			}
			if outstanding == 0 {
				continue
			}
			if err := s.burn(ctx, tx.Ledger, agreement.ObligationAsset(), party, outstanding); err != nil {
				return err
			}
		}
		if err := tx.Agreements.Save(ctx, agreement); err != nil {
			return err
		}
		terminated = agreement
		return tx.Events.Append(ctx, events.TerminateSwap{
			AgreementID:  agreement.ID(),
			Payer:        agreement.FixedInterestPayer(),
			Receiver:     agreement.FloatingInterestPayer(),
			TerminatedBy: caller,
			OccurredAt:   agreement.TerminatedAt(),
		})
	})
	if err != nil {
		metrics.IncTermination(metrics.ResultError)
		return nil, err
	}
	metrics.IncTermination(metrics.ResultSuccess)
	s.logger.Info("agreement terminated",
		zap.String("agreement_id", agreementID),
		zap.String("terminated_by", caller.Hex()),
	)
	s.dispatch(ctx)
	return terminated, nil
}

// Agreement loads one agreement.
func (s *SettlementService) Agreement(ctx context.Context, agreementID string) (*swap.Agreement, error) {
	var agreement *swap.Agreement
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		agreement, err = tx.Agreements.Get(ctx, agreementID)
		return err
	})
	return agreement, err
}

// List returns every agreement.
func (s *SettlementService) List(ctx context.Context) ([]*swap.Agreement, error) {
	var list []*swap.Agreement
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		list, err = tx.Agreements.List(ctx)
		return err
	})
	return list, err
}

// PartyPosition is one counterparty's ledger position in an agreement.
type PartyPosition struct {
	Account          common.Address
	ObligationTokens int64
	AssetBalance     int64
}

// ObligationStatus summarizes outstanding obligations of an agreement.
type ObligationStatus struct {
	AgreementID      string
	Status           swap.Status
	RemainingPeriods int
	Payer            PartyPosition
	Receiver         PartyPosition
}

// Obligations reports obligation tokens and settlement-asset balances.
func (s *SettlementService) Obligations(ctx context.Context, agreementID string) (ObligationStatus, error) {
	var status ObligationStatus
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		agreement, err := tx.Agreements.Get(ctx, agreementID)
		if err != nil {
			return err
		}
		status = ObligationStatus{
			AgreementID:      agreement.ID(),
			Status:           agreement.Status(),
			RemainingPeriods: agreement.RemainingPeriods(),
		}
		position := func(account common.Address) (PartyPosition, error) {
			tokens, err := tx.Ledger.BalanceOf(ctx, agreement.ObligationAsset(), account)
			if err != nil {
				return PartyPosition{}, err
			}
			balance, err := tx.Ledger.BalanceOf(ctx, AssetKey(agreement.AssetContract()), account)
			if err != nil {
				return PartyPosition{}, err
			}
			return PartyPosition{Account: account, ObligationTokens: tokens, AssetBalance: balance}, nil
		}
		if status.Payer, err = position(agreement.FixedInterestPayer()); err != nil {
			return err
		}
		status.Receiver, err = position(agreement.FloatingInterestPayer())
		return err
	})
	return status, err
}

// EnsureAgreements books every agreement that does not exist yet.
func (s *SettlementService) EnsureAgreements(ctx context.Context, terms []swap.Terms) (int, error) {
	created := 0
	for _, t := range terms {
		_, err := s.CreateAgreement(ctx, t)
		switch {
		case err == nil:
			created++
		case errors.Is(err, swap.ErrAgreementExists):
		default:
			return created, fmt.Errorf("book agreement %s: %w", t.ID, err)
		}
	}
	return created, nil
}

func (s *SettlementService) transfer(ctx context.Context, ledger Ledger, asset string, from, to common.Address, amount int64) error {
	var balance int64
	if err := s.withLedger(ctx, func(ctx context.Context) error {
		var err error
		balance, err = ledger.BalanceOf(ctx, asset, from)
		return err
	}); err != nil {
		return fmt.Errorf("%w: balance of %s: %v", swap.ErrTransferRejected, from.Hex(), err)
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d, owes %d", swap.ErrInsufficientBalance, from.Hex(), balance, amount)
	}
	err := s.withLedger(ctx, func(ctx context.Context) error {
		return ledger.Transfer(ctx, asset, from, to, amount)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, swap.ErrInsufficientBalance):
		return err
	default:
		return fmt.Errorf("%w: %v", swap.ErrTransferRejected, err)
	}
}

func (s *SettlementService) burn(ctx context.Context, ledger Ledger, asset string, from common.Address, amount int64) error {
	err := s.withLedger(ctx, func(ctx context.Context) error {
		return ledger.Burn(ctx, asset, from, amount)
	})
	if err != nil {
		return fmt.Errorf("%w: %s from %s: %v", swap.ErrBurnFailed, asset, from.Hex(), err)
	}
	return nil
}

func (s *SettlementService) withLedger(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	return fn(callCtx)
}

func (s *SettlementService) dispatch(ctx context.Context) {
	if s.dispatcher == nil {
		return
	}
	result, err := s.dispatcher.Dispatch(ctx, eventing.DefaultDispatchLimit)
	if err != nil || result.Failed > 0 {
		s.logger.Warn("outbox dispatch incomplete",
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Error(err),
		)
	}
}
