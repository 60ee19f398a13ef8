package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
	"irs-settlement/internal/swap/infrastructure/oracle"
)

func oracleAgreement(t *testing.T) *swap.Agreement {
	t.Helper()
	terms := quarterlyTerms("swap-1")
	terms.BenchmarkSource = swap.OracleBenchmark(feed)
	agreement, err := swap.NewAgreement(terms, start)
	require.NoError(t, err)
	return agreement
}

func TestNewRateResolver_RequiresTolerance(t *testing.T) {
	_, err := application.NewRateResolver(nil, 0)
	require.Error(t, err)
}

func TestRateResolver_ManualIgnoresOracle(t *testing.T) {
	resolver, err := application.NewRateResolver(blockingOracle{}, time.Hour)
	require.NoError(t, err)
	agreement, err := swap.NewAgreement(quarterlyTerms("swap-1"), start)
	require.NoError(t, err)

	quote, err := resolver.Resolve(context.Background(), agreement, firstDue)
	require.NoError(t, err)
	assert.Equal(t, int64(150), quote.Benchmark)
	assert.Equal(t, int64(50), quote.Spread)
	assert.Equal(t, int64(200), quote.FloatingRate)
	assert.Equal(t, "manual", quote.Source)
	assert.Equal(t, firstDue, quote.ObservedAt)
}

func TestRateResolver_Oracle(t *testing.T) {
	cases := []struct {
		name    string
		value   application.RateValue
		set     bool
		wantErr error
		want    int64
	}{
		{name: "missing", wantErr: swap.ErrOracleUnavailable},
		{name: "never updated", set: true, value: application.RateValue{Value: 150, Decimals: 2}, wantErr: swap.ErrStaleQuote},
		{name: "older than tolerance", set: true, value: application.RateValue{Value: 150, Decimals: 2, UpdatedAt: firstDue.Add(-25 * time.Hour)}, wantErr: swap.ErrStaleQuote},
		{name: "observed after as of", set: true, value: application.RateValue{Value: 900, Decimals: 2, UpdatedAt: firstDue.AddDate(0, 3, 0)}, wantErr: swap.ErrStaleQuote},
		{name: "observed at as of", set: true, value: application.RateValue{Value: 150, Decimals: 2, UpdatedAt: firstDue}, want: 150},
		{name: "at tolerance edge", set: true, value: application.RateValue{Value: 150, Decimals: 2, UpdatedAt: firstDue.Add(-24 * time.Hour)}, want: 150},
		{name: "more decimals", set: true, value: application.RateValue{Value: 1_500_000, Decimals: 6, UpdatedAt: firstDue}, want: 150},
		{name: "fewer decimals", set: true, value: application.RateValue{Value: 15, Decimals: 1, UpdatedAt: firstDue}, want: 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := oracle.NewStaticOracle()
			if tc.set {
				o.Set(feed, tc.value)
			}
			resolver, err := application.NewRateResolver(o, 24*time.Hour)
			require.NoError(t, err)

			quote, err := resolver.Resolve(context.Background(), oracleAgreement(t), firstDue)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, quote.Benchmark)
			assert.Equal(t, tc.want+50, quote.FloatingRate)
			assert.Equal(t, tc.value.UpdatedAt, quote.ObservedAt)
		})
	}
}

func TestRateResolver_NoOracleConfigured(t *testing.T) {
	resolver, err := application.NewRateResolver(nil, time.Hour)
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), oracleAgreement(t), firstDue)
	require.ErrorIs(t, err, swap.ErrOracleUnavailable)
}

func TestRateResolver_Timeout(t *testing.T) {
	resolver, err := application.NewRateResolver(blockingOracle{}, time.Hour, application.WithOracleTimeout(10*time.Millisecond))
	require.NoError(t, err)

	started := time.Now()
	_, err = resolver.Resolve(context.Background(), oracleAgreement(t), firstDue)
	require.ErrorIs(t, err, swap.ErrOracleUnavailable)
	assert.Less(t, time.Since(started), time.Second)
}
