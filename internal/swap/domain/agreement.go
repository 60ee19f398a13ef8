package swap

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PeriodSettlement records one settled payment period.
type PeriodSettlement struct {
	PaymentDate     time.Time
	PeriodStart     time.Time
	PeriodEnd       time.Time
	FixedRate       int64
	Benchmark       int64
	Spread          int64
	FloatingRate    int64
	QuoteObservedAt time.Time
	QuoteSource     string
	FixedLeg        int64
	FloatingLeg     int64
	Net             int64
	Amount          int64
	Direction       Direction
	From            common.Address
	To              common.Address
	SettledBy       common.Address
	SettledAt       time.Time
}

// Agreement is the aggregate root of one interest-rate swap.
// Identity: Terms.ID.
type Agreement struct {
	terms    Terms
	schedule *PaymentSchedule
	status   Status

	terminatedBy common.Address
	terminatedAt time.Time

	settlements []PeriodSettlement
	createdAt   time.Time
	version     int64

	isNew bool
}

// NewAgreement validates terms and derives the payment schedule.
func NewAgreement(terms Terms, createdAt time.Time) (*Agreement, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	terms = terms.normalized()
	schedule, err := BuildSchedule(terms.StartingDate, terms.MaturityDate, terms.Schedule)
	if err != nil {
		return nil, err
	}
	return &Agreement{
		terms:     terms,
		schedule:  schedule,
		status:    StatusActive,
		createdAt: createdAt.UTC(),
		isNew:     true,
	}, nil
}

// Snapshot is the persisted form of an Agreement.
type Snapshot struct {
	Terms        Terms
	PaymentDates []time.Time
	Settled      []bool
	Status       Status
	TerminatedBy common.Address
	TerminatedAt time.Time
	Settlements  []PeriodSettlement
	CreatedAt    time.Time
	Version      int64
}

// RestoreAgreement rebuilds a persisted agreement.
func RestoreAgreement(s Snapshot) (*Agreement, error) {
	if err := s.Terms.Validate(); err != nil {
		return nil, err
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTerms, s.Status)
	}
	terms := s.Terms.normalized()
	schedule, err := RestoreSchedule(terms.StartingDate, terms.MaturityDate, s.PaymentDates, s.Settled)
	if err != nil {
		return nil, err
	}
	settlements := make([]PeriodSettlement, len(s.Settlements))
	copy(settlements, s.Settlements)
	return &Agreement{
		terms:        terms,
		schedule:     schedule,
		status:       s.Status,
		terminatedBy: s.TerminatedBy,
		terminatedAt: s.TerminatedAt,
		settlements:  settlements,
		createdAt:    s.CreatedAt,
		version:      s.Version,
	}, nil
}

// Snapshot returns the persisted form.
func (a *Agreement) Snapshot() Snapshot {
	settlements := make([]PeriodSettlement, len(a.settlements))
	copy(settlements, a.settlements)
	return Snapshot{
		Terms:        a.terms,
		PaymentDates: a.schedule.Dates(),
		Settled:      a.schedule.SettledFlags(),
		Status:       a.status,
		TerminatedBy: a.terminatedBy,
		TerminatedAt: a.terminatedAt,
		Settlements:  settlements,
		CreatedAt:    a.createdAt,
		Version:      a.version,
	}
}

// ID returns aggregate identity.
func (a *Agreement) ID() string { return a.terms.ID }

// Terms returns the agreed terms.
func (a *Agreement) Terms() Terms { return a.terms }

// FixedInterestPayer returns the fixed-rate payer.
func (a *Agreement) FixedInterestPayer() common.Address { return a.terms.Payer }

// FloatingInterestPayer returns the floating-rate payer.
func (a *Agreement) FloatingInterestPayer() common.Address { return a.terms.Receiver }

// RatesDecimals returns the fixed-point base of rates.
func (a *Agreement) RatesDecimals() uint8 { return a.terms.RatesDecimals }

// SwapRate returns the fixed rate.
func (a *Agreement) SwapRate() int64 { return a.terms.FixedRate }

// Spread returns the spread over the benchmark.
func (a *Agreement) Spread() int64 { return a.terms.Spread }

// AssetContract returns the settlement asset.
func (a *Agreement) AssetContract() common.Address { return a.terms.Asset }

// NotionalAmount returns the notional.
func (a *Agreement) NotionalAmount() int64 { return a.terms.Notional }

// PaymentFrequency returns the payment interval in seconds, 0 for explicit schedules.
func (a *Agreement) PaymentFrequency() int64 {
	if every, ok := a.terms.Schedule.Frequency(); ok {
		return int64(every / time.Second)
	}
	return 0
}

// PaymentDates returns the payment dates.
func (a *Agreement) PaymentDates() []time.Time { return a.schedule.Dates() }

// StartingDate returns the starting date.
func (a *Agreement) StartingDate() time.Time { return a.terms.StartingDate }

// MaturityDate returns the maturity date.
func (a *Agreement) MaturityDate() time.Time { return a.terms.MaturityDate }

// Benchmark returns the benchmark name.
func (a *Agreement) Benchmark() string { return a.terms.Benchmark }

// BenchmarkSource returns where the benchmark comes from.
func (a *Agreement) BenchmarkSource() BenchmarkSource { return a.terms.BenchmarkSource }

// OracleContractForBenchmark returns the oracle address, zero for manual benchmarks.
func (a *Agreement) OracleContractForBenchmark() common.Address {
	addr, _ := a.terms.BenchmarkSource.Oracle()
	return addr
}

// DayCount returns the year-fraction convention.
func (a *Agreement) DayCount() DayCount { return a.terms.DayCount }

// Status returns the lifecycle status.
func (a *Agreement) Status() Status { return a.status }

// TerminatedBy returns the counterparty that terminated the agreement.
func (a *Agreement) TerminatedBy() common.Address { return a.terminatedBy }

// TerminatedAt returns the termination time.
func (a *Agreement) TerminatedAt() time.Time { return a.terminatedAt }

// CreatedAt returns the creation time.
func (a *Agreement) CreatedAt() time.Time { return a.createdAt }

// Schedule returns a copy of the payment schedule.
func (a *Agreement) Schedule() *PaymentSchedule { return a.schedule.Clone() }

// PeriodCount returns the number of payment periods.
func (a *Agreement) PeriodCount() int { return a.schedule.Len() }

// RemainingPeriods returns the number of unsettled periods.
func (a *Agreement) RemainingPeriods() int { return a.schedule.Remaining() }

// Settlements returns the settled periods, oldest first.
func (a *Agreement) Settlements() []PeriodSettlement {
	out := make([]PeriodSettlement, len(a.settlements))
	copy(out, a.settlements)
	return out
}

// ObligationAsset names the ledger asset of this agreement's obligation tokens.
func (a *Agreement) ObligationAsset() string { return ObligationAsset(a.terms.ID) }

// ObligationAsset names the ledger asset of an agreement's obligation tokens.
func ObligationAsset(agreementID string) string { return "obligation:" + agreementID }

// NextDueDate returns the oldest unsettled payment date due at asOf.
func (a *Agreement) NextDueDate(asOf time.Time) (time.Time, bool) {
	return a.schedule.NextDueDate(asOf)
}

// PeriodFraction returns the accrual period and its year fraction for date.
func (a *Agreement) PeriodFraction(date time.Time) (time.Time, time.Time, YearFraction, error) {
	start, end, err := a.schedule.PeriodBounds(date)
	if err != nil {
		return time.Time{}, time.Time{}, YearFraction{}, err
	}
	fraction, err := a.terms.DayCount.YearFraction(start, end)
	if err != nil {
		return time.Time{}, time.Time{}, YearFraction{}, err
	}
	return start, end, fraction, nil
}

// Parties returns who pays and who receives for a direction.
// DirectionNone yields zero addresses.
func (a *Agreement) Parties(d Direction) (from, to common.Address) {
	switch d {
	case DirectionPayerToReceiver:
		return a.terms.Payer, a.terms.Receiver
	case DirectionReceiverToPayer:
		return a.terms.Receiver, a.terms.Payer
	default:
		return common.Address{}, common.Address{}
	}
}

// RecordSettlement marks the period settled and keeps its record.
func (a *Agreement) RecordSettlement(record PeriodSettlement) error {
	if err := a.EnsureActive(); err != nil {
		return err
	}
	if err := a.schedule.MarkSettled(record.PaymentDate); err != nil {
		return err
	}
	record.PaymentDate = normalizeDate(record.PaymentDate)
	a.settlements = append(a.settlements, record)
	return nil
}

// Version returns the optimistic concurrency version.
func (a *Agreement) Version() int64 { return a.version }

// IsNew reports whether the aggregate was freshly created.
func (a *Agreement) IsNew() bool { return a.isNew }

// MarkPersisted marks the aggregate as persisted at the next version.
func (a *Agreement) MarkPersisted() {
	if a != nil {
		a.isNew = false
		a.version++
	}
}

// Clone returns a detached copy.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	copy := *a
	copy.schedule = a.schedule.Clone()
	copy.settlements = a.Settlements()
	return &copy
}
