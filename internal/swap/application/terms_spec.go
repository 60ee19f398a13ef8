package application

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	swap "irs-settlement/internal/swap/domain"
)

// TermsSpec is the human-facing form of swap terms used by the agreement
// book and the HTTP API. Rates are decimal percent strings ("2.50") and are
// converted exactly to fixed point with RatesDecimals digits.
type TermsSpec struct {
	ID            string   `yaml:"id" json:"id"`
	Payer         string   `yaml:"payer" json:"payer"`
	Receiver      string   `yaml:"receiver" json:"receiver"`
	Asset         string   `yaml:"asset" json:"asset"`
	Notional      int64    `yaml:"notional" json:"notional"`
	FixedRate     string   `yaml:"fixed_rate" json:"fixed_rate"`
	Spread        string   `yaml:"spread" json:"spread"`
	RatesDecimals uint8    `yaml:"rates_decimals" json:"rates_decimals"`
	Benchmark     string   `yaml:"benchmark" json:"benchmark"`
	Oracle        string   `yaml:"oracle" json:"oracle,omitempty"`
	ManualRate    string   `yaml:"manual_rate" json:"manual_rate,omitempty"`
	Frequency     string   `yaml:"frequency" json:"frequency,omitempty"`
	PaymentDates  []string `yaml:"payment_dates" json:"payment_dates,omitempty"`
	StartingDate  string   `yaml:"starting_date" json:"starting_date"`
	MaturityDate  string   `yaml:"maturity_date" json:"maturity_date"`
	DayCount      string   `yaml:"day_count" json:"day_count,omitempty"`
}

// Terms converts the spec to domain terms.
func (s TermsSpec) Terms() (swap.Terms, error) {
	invalid := func(format string, args ...any) (swap.Terms, error) {
		return swap.Terms{}, fmt.Errorf("%w: "+format, append([]any{swap.ErrInvalidTerms}, args...)...)
	}

	terms := swap.Terms{
		ID:            strings.TrimSpace(s.ID),
		Notional:      s.Notional,
		RatesDecimals: s.RatesDecimals,
		Benchmark:     strings.TrimSpace(s.Benchmark),
		DayCount:      swap.DayCount(strings.ToUpper(strings.TrimSpace(s.DayCount))),
	}
	var err error
	if terms.Payer, err = parseAddress("payer", s.Payer); err != nil {
		return swap.Terms{}, err
	}
	if terms.Receiver, err = parseAddress("receiver", s.Receiver); err != nil {
		return swap.Terms{}, err
	}
	if terms.Asset, err = parseAddress("asset", s.Asset); err != nil {
		return swap.Terms{}, err
	}
	if terms.FixedRate, err = swap.ParseFixed(s.FixedRate, s.RatesDecimals); err != nil {
		return swap.Terms{}, fmt.Errorf("fixed_rate: %w", err)
	}
	if strings.TrimSpace(s.Spread) != "" {
		if terms.Spread, err = swap.ParseFixed(s.Spread, s.RatesDecimals); err != nil {
			return swap.Terms{}, fmt.Errorf("spread: %w", err)
		}
	}

	switch {
	case s.Oracle != "" && s.ManualRate != "":
		return invalid("oracle and manual_rate are mutually exclusive")
	case s.Oracle != "":
		oracle, err := parseAddress("oracle", s.Oracle)
		if err != nil {
			return swap.Terms{}, err
		}
		terms.BenchmarkSource = swap.OracleBenchmark(oracle)
	case s.ManualRate != "":
		value, err := swap.ParseFixed(s.ManualRate, s.RatesDecimals)
		if err != nil {
			return swap.Terms{}, fmt.Errorf("manual_rate: %w", err)
		}
		terms.BenchmarkSource = swap.ManualBenchmark(value)
	default:
		return invalid("one of oracle or manual_rate is required")
	}

	if terms.StartingDate, err = parseDate("starting_date", s.StartingDate); err != nil {
		return swap.Terms{}, err
	}
	if terms.MaturityDate, err = parseDate("maturity_date", s.MaturityDate); err != nil {
		return swap.Terms{}, err
	}

	switch {
	case s.Frequency != "" && len(s.PaymentDates) > 0:
		return invalid("frequency and payment_dates are mutually exclusive")
	case s.Frequency != "":
		every, err := ParseFrequency(s.Frequency)
		if err != nil {
			return swap.Terms{}, err
		}
		terms.Schedule = swap.FrequencySchedule(every)
	case len(s.PaymentDates) > 0:
		dates := make([]time.Time, 0, len(s.PaymentDates))
		for _, raw := range s.PaymentDates {
			date, err := parseDate("payment_dates", raw)
			if err != nil {
				return swap.Terms{}, err
			}
			dates = append(dates, date)
		}
		terms.Schedule = swap.ExplicitSchedule(dates)
	default:
		return invalid("one of frequency or payment_dates is required")
	}
	return terms, nil
}

// ParseFrequency accepts Go durations ("2160h"), whole days ("90d") and
// plain seconds ("7776000").
func ParseFrequency(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < time.Second {
		return 0, fmt.Errorf("%w: invalid frequency %q", swap.ErrInvalidTerms, value)
	}
	return d, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", swap.ErrInvalidTerms, field, value)
	}
	return common.HexToAddress(value), nil
}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a date", swap.ErrInvalidTerms, field, value)
}

// Book is the agreement book loaded at start-up.
type Book struct {
	Agreements []TermsSpec   `yaml:"agreements"`
	Funding    []FundingSpec `yaml:"funding"`
}

// FundingSpec is an opening settlement-asset balance.
type FundingSpec struct {
	Asset   string `yaml:"asset"`
	Account string `yaml:"account"`
	Amount  int64  `yaml:"amount"`
}

// LoadBook reads a YAML agreement book.
func LoadBook(path string) (Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Book{}, err
	}
	return ParseBook(data)
}

// ParseBook decodes a YAML agreement book.
func ParseBook(data []byte) (Book, error) {
	var book Book
	if err := yaml.Unmarshal(data, &book); err != nil {
		return Book{}, fmt.Errorf("agreement book: %w", err)
	}
	return book, nil
}

// Terms converts and validates every agreement of the book. Ids are required
// and unique.
func (b Book) Terms() ([]swap.Terms, error) {
	terms := make([]swap.Terms, 0, len(b.Agreements))
	seen := make(map[string]struct{}, len(b.Agreements))
	for i, spec := range b.Agreements {
		t, err := spec.Terms()
		if err != nil {
			return nil, fmt.Errorf("agreement book entry %d: %w", i, err)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("agreement book entry %d: %w: id required", i, swap.ErrInvalidTerms)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("agreement book: duplicate id %s", t.ID)
		}
		seen[t.ID] = struct{}{}
		terms = append(terms, t)
	}
	return terms, nil
}

// Fund credits every funding entry of the book in one unit of work.
func (b Book) Fund(ctx context.Context, uow UnitOfWork) error {
	if len(b.Funding) == 0 {
		return nil
	}
	return uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		for i, f := range b.Funding {
			asset, err := parseAddress("funding asset", f.Asset)
			if err != nil {
				return fmt.Errorf("funding entry %d: %w", i, err)
			}
			account, err := parseAddress("funding account", f.Account)
			if err != nil {
				return fmt.Errorf("funding entry %d: %w", i, err)
			}
			if err := tx.Ledger.Mint(ctx, AssetKey(asset), account, f.Amount); err != nil {
				return fmt.Errorf("funding entry %d: %w", i, err)
			}
		}
		return nil
	})
}
