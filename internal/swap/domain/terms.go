package swap

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxRatesDecimals bounds the fixed-point base of rates.
const MaxRatesDecimals = 18

// BenchmarkKind tags a BenchmarkSource.
type BenchmarkKind int

const (
	// BenchmarkManual uses a fixed benchmark value set at creation.
	BenchmarkManual BenchmarkKind = iota + 1
	// BenchmarkOracle reads the benchmark from an oracle contract.
	BenchmarkOracle
)

// BenchmarkSource is either an oracle reference or a manual benchmark value.
type BenchmarkSource struct {
	kind   BenchmarkKind
	oracle common.Address
	value  int64
}

// ManualBenchmark builds a manual benchmark source.
func ManualBenchmark(value int64) BenchmarkSource {
	return BenchmarkSource{kind: BenchmarkManual, value: value}
}

// OracleBenchmark builds an oracle benchmark source.
func OracleBenchmark(oracle common.Address) BenchmarkSource {
	return BenchmarkSource{kind: BenchmarkOracle, oracle: oracle}
}

// Kind returns the source variant.
func (b BenchmarkSource) Kind() BenchmarkKind { return b.kind }

// Oracle returns the oracle address for oracle sources.
func (b BenchmarkSource) Oracle() (common.Address, bool) {
	if b.kind != BenchmarkOracle {
		return common.Address{}, false
	}
	return b.oracle, true
}

// ManualValue returns the benchmark value for manual sources.
func (b BenchmarkSource) ManualValue() (int64, bool) {
	if b.kind != BenchmarkManual {
		return 0, false
	}
	return b.value, true
}

func (b BenchmarkSource) validate() error {
	switch b.kind {
	case BenchmarkManual:
		return nil
	case BenchmarkOracle:
		if b.oracle == (common.Address{}) {
			return fmt.Errorf("%w: zero oracle address", ErrInvalidTerms)
		}
		return nil
	default:
		return fmt.Errorf("%w: missing benchmark source", ErrInvalidTerms)
	}
}

// ScheduleSpec is either a fixed payment frequency or an explicit date list.
type ScheduleSpec struct {
	frequency time.Duration
	dates     []time.Time
}

// FrequencySchedule derives payment dates every interval after the starting date.
func FrequencySchedule(every time.Duration) ScheduleSpec {
	return ScheduleSpec{frequency: every}
}

// ExplicitSchedule uses the given payment dates.
func ExplicitSchedule(dates []time.Time) ScheduleSpec {
	copied := make([]time.Time, len(dates))
	copy(copied, dates)
	return ScheduleSpec{dates: copied}
}

// Frequency returns the payment interval for frequency schedules.
func (s ScheduleSpec) Frequency() (time.Duration, bool) {
	if s.frequency <= 0 || s.dates != nil {
		return 0, false
	}
	return s.frequency, true
}

// Dates returns the explicit dates for explicit schedules.
func (s ScheduleSpec) Dates() ([]time.Time, bool) {
	if s.dates == nil {
		return nil, false
	}
	copied := make([]time.Time, len(s.dates))
	copy(copied, s.dates)
	return copied, true
}

// Terms are the agreed swap terms. They are fixed once an Agreement is built.
type Terms struct {
	ID              string
	Payer           common.Address // fixed-rate payer
	Receiver        common.Address // floating-rate payer
	Asset           common.Address
	Notional        int64
	FixedRate       int64
	Spread          int64
	RatesDecimals   uint8
	Benchmark       string
	BenchmarkSource BenchmarkSource
	Schedule        ScheduleSpec
	StartingDate    time.Time
	MaturityDate    time.Time
	DayCount        DayCount
}

// Validate checks the terms for consistency.
func (t Terms) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTerms)
	}
	zero := common.Address{}
	if t.Payer == zero || t.Receiver == zero {
		return fmt.Errorf("%w: zero counterparty address", ErrInvalidTerms)
	}
	if t.Payer == t.Receiver {
		return fmt.Errorf("%w: payer equals receiver", ErrInvalidTerms)
	}
	if t.Asset == zero {
		return fmt.Errorf("%w: zero asset address", ErrInvalidTerms)
	}
	if t.Notional <= 0 {
		return fmt.Errorf("%w: notional must be positive", ErrInvalidTerms)
	}
	if t.RatesDecimals > MaxRatesDecimals {
		return fmt.Errorf("%w: rates decimals above %d", ErrInvalidTerms, MaxRatesDecimals)
	}
	if t.StartingDate.IsZero() || t.MaturityDate.IsZero() {
		return fmt.Errorf("%w: missing starting or maturity date", ErrInvalidTerms)
	}
	if !t.MaturityDate.After(t.StartingDate) {
		return fmt.Errorf("%w: maturity must be after starting date", ErrInvalidTerms)
	}
	if err := t.BenchmarkSource.validate(); err != nil {
		return err
	}
	if !t.dayCount().Valid() {
		return fmt.Errorf("%w: unsupported day count %q", ErrInvalidTerms, t.DayCount)
	}
	return nil
}

func (t Terms) dayCount() DayCount {
	if t.DayCount == "" {
		return DayCountACT360
	}
	return t.DayCount
}

func (t Terms) normalized() Terms {
	t.ID = strings.TrimSpace(t.ID)
	t.StartingDate = normalizeDate(t.StartingDate)
	t.MaturityDate = normalizeDate(t.MaturityDate)
	t.DayCount = t.dayCount()
	if dates, ok := t.Schedule.Dates(); ok {
		for i := range dates {
			dates[i] = normalizeDate(dates[i])
		}
		t.Schedule = ExplicitSchedule(dates)
	}
	return t
}

// normalizeDate maps a timestamp onto whole UTC seconds.
func normalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Unix(t.Unix(), 0).UTC()
}
