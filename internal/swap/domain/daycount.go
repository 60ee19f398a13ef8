package swap

import (
	"fmt"
	"time"
)

// DayCount is a year-fraction convention.
type DayCount string

const (
	// DayCountACT360 divides the actual period length by 360 days.
	DayCountACT360 DayCount = "ACT/360"
	// DayCountACT365F divides the actual period length by 365 days.
	DayCountACT365F DayCount = "ACT/365F"
	// DayCount30360 counts 30-day months on a 360-day year (30E/360).
	DayCount30360 DayCount = "30/360"
)

const secondsPerDay = 24 * 60 * 60

// Valid reports whether the convention is supported.
func (d DayCount) Valid() bool {
	switch d {
	case DayCountACT360, DayCountACT365F, DayCount30360:
		return true
	default:
		return false
	}
}

// YearFraction is an exact rational year fraction.
type YearFraction struct {
	Num int64
	Den int64
}

// Float64 returns an approximation for display.
func (f YearFraction) Float64() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// YearFraction returns the fraction of a year between start and end.
// ACT conventions measure the period in seconds so irregular periods keep
// their exact length.
func (d DayCount) YearFraction(start, end time.Time) (YearFraction, error) {
	if !end.After(start) {
		return YearFraction{}, fmt.Errorf("%w: empty accrual period", ErrInvalidTerms)
	}
	switch d {
	case DayCountACT360:
		return YearFraction{Num: end.Unix() - start.Unix(), Den: 360 * secondsPerDay}, nil
	case DayCountACT365F:
		return YearFraction{Num: end.Unix() - start.Unix(), Den: 365 * secondsPerDay}, nil
	case DayCount30360:
		start, end = start.UTC(), end.UTC()
		d1, d2 := start.Day(), end.Day()
		if d1 > 30 {
			d1 = 30
		}
		if d2 > 30 {
			d2 = 30
		}
		days := 360*(end.Year()-start.Year()) + 30*(int(end.Month())-int(start.Month())) + (d2 - d1)
		return YearFraction{Num: int64(days), Den: 360}, nil
	default:
		return YearFraction{}, fmt.Errorf("%w: unsupported day count %q", ErrInvalidTerms, d)
	}
}
