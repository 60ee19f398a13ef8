package swap

import (
	"fmt"
	"sort"
	"time"
)

// MaxPeriods caps the number of payment dates in a schedule.
const MaxPeriods = 10000

// PaymentSchedule is the ordered list of payment dates of an agreement and
// the settlement flag of each date.
type PaymentSchedule struct {
	start   time.Time
	dates   []time.Time
	settled []bool
}

// BuildSchedule derives the payment dates between start and maturity.
// Frequency schedules step from start and end with a stub on maturity when
// the last step does not land on it.
func BuildSchedule(start, maturity time.Time, spec ScheduleSpec) (*PaymentSchedule, error) {
	start = normalizeDate(start)
	maturity = normalizeDate(maturity)
	if !maturity.After(start) {
		return nil, fmt.Errorf("%w: maturity must be after starting date", ErrInvalidTerms)
	}

	var dates []time.Time
	if every, ok := spec.Frequency(); ok {
		if every < time.Second {
			return nil, fmt.Errorf("%w: payment frequency below one second", ErrInvalidTerms)
		}
		for next := start.Add(every); !next.After(maturity); next = next.Add(every) {
			if len(dates) >= MaxPeriods {
				return nil, fmt.Errorf("%w: more than %d periods", ErrInvalidTerms, MaxPeriods)
			}
			dates = append(dates, next)
		}
		if len(dates) == 0 || dates[len(dates)-1].Before(maturity) {
			dates = append(dates, maturity)
		}
	} else if explicit, ok := spec.Dates(); ok {
		for i := range explicit {
			explicit[i] = normalizeDate(explicit[i])
		}
		dates = explicit
	} else {
		return nil, fmt.Errorf("%w: missing payment schedule", ErrInvalidTerms)
	}

	return RestoreSchedule(start, maturity, dates, nil)
}

// RestoreSchedule rebuilds a schedule from persisted dates and flags.
func RestoreSchedule(start, maturity time.Time, dates []time.Time, settled []bool) (*PaymentSchedule, error) {
	start = normalizeDate(start)
	maturity = normalizeDate(maturity)
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: empty payment schedule", ErrInvalidTerms)
	}
	if len(dates) > MaxPeriods {
		return nil, fmt.Errorf("%w: more than %d periods", ErrInvalidTerms, MaxPeriods)
	}
	if settled != nil && len(settled) != len(dates) {
		return nil, fmt.Errorf("%w: settled flags do not match dates", ErrInvalidTerms)
	}

	s := &PaymentSchedule{
		start:   start,
		dates:   make([]time.Time, len(dates)),
		settled: make([]bool, len(dates)),
	}
	prev := start
	for i, date := range dates {
		date = normalizeDate(date)
		if !date.After(prev) {
			return nil, fmt.Errorf("%w: payment dates must be strictly increasing after the starting date", ErrInvalidTerms)
		}
		if date.After(maturity) {
			return nil, fmt.Errorf("%w: payment date %s after maturity", ErrInvalidTerms, date.Format(time.RFC3339))
		}
		s.dates[i] = date
		prev = date
	}
	copy(s.settled, settled)
	return s, nil
}

// Len returns the number of payment periods.
func (s *PaymentSchedule) Len() int { return len(s.dates) }

// Dates returns a copy of the payment dates.
func (s *PaymentSchedule) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// SettledFlags returns a copy of the settled flags aligned with Dates.
func (s *PaymentSchedule) SettledFlags() []bool {
	out := make([]bool, len(s.settled))
	copy(out, s.settled)
	return out
}

// Remaining returns the number of unsettled periods.
func (s *PaymentSchedule) Remaining() int {
	n := 0
	for _, done := range s.settled {
		if !done {
			n++
		}
	}
	return n
}

// NextDueDate returns the earliest unsettled date that is not after asOf.
func (s *PaymentSchedule) NextDueDate(asOf time.Time) (time.Time, bool) {
	for i, date := range s.dates {
		if s.settled[i] {
			continue
		}
		if date.After(asOf) {
			return time.Time{}, false
		}
		return date, true
	}
	return time.Time{}, false
}

// IsSettled reports whether date has been settled.
func (s *PaymentSchedule) IsSettled(date time.Time) (bool, error) {
	i, err := s.index(date)
	if err != nil {
		return false, err
	}
	return s.settled[i], nil
}

// MarkSettled flags date as settled.
func (s *PaymentSchedule) MarkSettled(date time.Time) error {
	i, err := s.index(date)
	if err != nil {
		return err
	}
	if s.settled[i] {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, s.dates[i].Format(time.RFC3339))
	}
	s.settled[i] = true
	return nil
}

// PeriodBounds returns the accrual period that ends on date.
func (s *PaymentSchedule) PeriodBounds(date time.Time) (time.Time, time.Time, error) {
	i, err := s.index(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := s.start
	if i > 0 {
		start = s.dates[i-1]
	}
	return start, s.dates[i], nil
}

// Clone returns a detached copy.
func (s *PaymentSchedule) Clone() *PaymentSchedule {
	if s == nil {
		return nil
	}
	return &PaymentSchedule{start: s.start, dates: s.Dates(), settled: s.SettledFlags()}
}

func (s *PaymentSchedule) index(date time.Time) (int, error) {
	date = normalizeDate(date)
	i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(date) })
	if i == len(s.dates) || !s.dates[i].Equal(date) {
		return -1, fmt.Errorf("%w: %s", ErrUnknownDate, date.Format(time.RFC3339))
	}
	return i, nil
}
