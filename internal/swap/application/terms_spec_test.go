package application_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
	"irs-settlement/internal/swap/infrastructure/memory"
)

func baseSpec() application.TermsSpec {
	return application.TermsSpec{
		ID:            "swap-1",
		Payer:         payer.Hex(),
		Receiver:      receiver.Hex(),
		Asset:         asset.Hex(),
		Notional:      1_000_000,
		FixedRate:     "2.50",
		Spread:        "0.5",
		RatesDecimals: 2,
		Benchmark:     "SOFR",
		ManualRate:    "1.50",
		Frequency:     "90d",
		StartingDate:  "2026-01-01",
		MaturityDate:  "2026-12-27",
		DayCount:      "act/360",
	}
}

func TestTermsSpec_Terms(t *testing.T) {
	terms, err := baseSpec().Terms()
	require.NoError(t, err)

	assert.Equal(t, int64(250), terms.FixedRate)
	assert.Equal(t, int64(50), terms.Spread)
	value, ok := terms.BenchmarkSource.ManualValue()
	require.True(t, ok)
	assert.Equal(t, int64(150), value)
	every, ok := terms.Schedule.Frequency()
	require.True(t, ok)
	assert.Equal(t, quarter, every)
	assert.Equal(t, swap.DayCountACT360, terms.DayCount)
	assert.Equal(t, start, terms.StartingDate)

	agreement, err := swap.NewAgreement(terms, start)
	require.NoError(t, err)
	assert.Equal(t, 4, agreement.PeriodCount())
}

func TestTermsSpec_Rejects(t *testing.T) {
	cases := map[string]func(*application.TermsSpec){
		"bad payer":          func(s *application.TermsSpec) { s.Payer = "alice" },
		"too precise rate":   func(s *application.TermsSpec) { s.FixedRate = "2.505" },
		"two rate sources":   func(s *application.TermsSpec) { s.Oracle = feed.Hex() },
		"no rate source":     func(s *application.TermsSpec) { s.ManualRate = "" },
		"two schedules":      func(s *application.TermsSpec) { s.PaymentDates = []string{"2026-06-01"} },
		"no schedule":        func(s *application.TermsSpec) { s.Frequency = "" },
		"bad date":           func(s *application.TermsSpec) { s.StartingDate = "01/01/2026" },
		"nonsense frequency": func(s *application.TermsSpec) { s.Frequency = "quarterly" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := baseSpec()
			mutate(&spec)
			_, err := spec.Terms()
			require.Error(t, err)
		})
	}
}

func TestTermsSpec_ExplicitDatesAndOracle(t *testing.T) {
	spec := baseSpec()
	spec.Frequency = ""
	spec.ManualRate = ""
	spec.Oracle = feed.Hex()
	spec.PaymentDates = []string{"2026-06-30", "2026-12-27T00:00:00Z"}

	terms, err := spec.Terms()
	require.NoError(t, err)
	address, ok := terms.BenchmarkSource.Oracle()
	require.True(t, ok)
	assert.Equal(t, feed, address)
	dates, ok := terms.Schedule.Dates()
	require.True(t, ok)
	assert.Equal(t, []time.Time{
		time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		maturity,
	}, dates)
}

func TestParseFrequency(t *testing.T) {
	cases := map[string]time.Duration{
		"90d":     quarter,
		"7776000": quarter,
		"2160h":   quarter,
		" 30d ":   30 * 24 * time.Hour,
	}
	for input, want := range cases {
		got, err := application.ParseFrequency(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	for _, input := range []string{"", "0d", "-5", "500ms"} {
		_, err := application.ParseFrequency(input)
		assert.ErrorIs(t, err, swap.ErrInvalidTerms, input)
	}
}

const bookYAML = `
agreements:
  - id: swap-a
    payer: "0x1000000000000000000000000000000000000001"
    receiver: "0x2000000000000000000000000000000000000002"
    asset: "0x4000000000000000000000000000000000000004"
    notional: 1000000
    fixed_rate: "2.50"
    spread: "0.50"
    rates_decimals: 2
    benchmark: SOFR
    manual_rate: "1.50"
    frequency: 90d
    starting_date: 2026-01-01
    maturity_date: 2026-12-27
  - id: swap-b
    payer: "0x2000000000000000000000000000000000000002"
    receiver: "0x1000000000000000000000000000000000000001"
    asset: "0x4000000000000000000000000000000000000004"
    notional: 500000
    fixed_rate: "3.125"
    rates_decimals: 3
    benchmark: EURIBOR
    oracle: "0x5000000000000000000000000000000000000005"
    payment_dates: [2026-07-01, 2027-01-01]
    starting_date: 2026-01-01
    maturity_date: 2027-01-01
    day_count: 30/360
funding:
  - asset: "0x4000000000000000000000000000000000000004"
    account: "0x1000000000000000000000000000000000000001"
    amount: 5000
`

func TestLoadBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bookYAML), 0o600))

	book, err := application.LoadBook(path)
	require.NoError(t, err)
	terms, err := book.Terms()
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "swap-a", terms[0].ID)
	assert.Equal(t, int64(3125), terms[1].FixedRate)
	assert.Equal(t, swap.DayCount30360, terms[1].DayCount)
}

func TestBook_Fund(t *testing.T) {
	book, err := application.ParseBook([]byte(bookYAML))
	require.NoError(t, err)
	store := memory.NewStore()
	require.NoError(t, book.Fund(context.Background(), store))
	assert.Equal(t, int64(5000), store.Balance(application.AssetKey(asset), payer))

	book.Funding[0].Amount = -1
	require.ErrorIs(t, book.Fund(context.Background(), store), application.ErrInvalidAmount)
	assert.Equal(t, int64(5000), store.Balance(application.AssetKey(asset), payer))
}

func TestBook_TermsRejects(t *testing.T) {
	book, err := application.ParseBook([]byte("agreements: [{id: x, payer: nope}]"))
	require.NoError(t, err)
	_, err = book.Terms()
	require.ErrorIs(t, err, swap.ErrInvalidTerms)

	duplicate := bookYAML[:strings.Index(bookYAML, "funding:")]
	duplicate += duplicate[len("\nagreements:\n"):]
	book, err = application.ParseBook([]byte(duplicate))
	require.NoError(t, err)
	_, err = book.Terms()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")

	_, err = application.ParseBook([]byte("agreements: {"))
	require.Error(t, err)
}
