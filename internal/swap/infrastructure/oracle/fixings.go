package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"irs-settlement/internal/swap/application"
)

const defaultFixingsTable = "rate_fixings"

// FixingsOracle reads published benchmark fixings from Postgres. The latest
// fixing at or before the settlement time wins.
type FixingsOracle struct {
	db    *sql.DB
	table string
}

// FixingsOption configures the oracle.
type FixingsOption func(*FixingsOracle)

// WithFixingsTable overrides the table name.
func WithFixingsTable(table string) FixingsOption {
	return func(o *FixingsOracle) {
		if table != "" {
			o.table = table
		}
	}
}

// NewFixingsOracle constructs the oracle.
func NewFixingsOracle(db *sql.DB, opts ...FixingsOption) *FixingsOracle {
	o := &FixingsOracle{db: db, table: defaultFixingsTable}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetRate returns the fixing of req.Benchmark published by req.Source.
func (o *FixingsOracle) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	if o == nil || o.db == nil {
		return application.RateValue{}, errors.New("fixings oracle: nil db")
	}
	if req.Benchmark == "" {
		return application.RateValue{}, errors.New("fixings oracle: empty benchmark")
	}
	if req.AsOf.IsZero() {
		return application.RateValue{}, errors.New("fixings oracle: invalid timestamp")
	}

	query := fmt.Sprintf(`
SELECT value, decimals, fixing_time
FROM %s
WHERE benchmark = $1 AND source = $2 AND fixing_time <= $3
ORDER BY fixing_time DESC
LIMIT 1`, o.table)

	var (
		value    int64
		decimals int16
		fixedAt  time.Time
	)
	err := o.db.QueryRowContext(ctx, query, req.Benchmark, req.Source.Hex(), req.AsOf.UTC()).Scan(&value, &decimals, &fixedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return application.RateValue{}, fmt.Errorf("%w: %s fixing before %s", ErrNoRate, req.Benchmark, req.AsOf.UTC().Format(time.RFC3339))
		}
		return application.RateValue{}, err
	}
	if decimals < 0 || decimals > 18 {
		return application.RateValue{}, fmt.Errorf("fixings oracle: invalid decimals %d", decimals)
	}
	return application.RateValue{
		Value:     value,
		Decimals:  uint8(decimals),
		UpdatedAt: fixedAt.UTC(),
		Source:    "fixings:" + req.Benchmark,
	}, nil
}

// Publish stores a fixing. Used for back-office entry and tests.
func (o *FixingsOracle) Publish(ctx context.Context, req application.RateRequest, value application.RateValue) error {
	if o == nil || o.db == nil {
		return errors.New("fixings oracle: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (benchmark, source, fixing_time, value, decimals)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (benchmark, source, fixing_time)
DO UPDATE SET value = EXCLUDED.value, decimals = EXCLUDED.decimals`, o.table)
	_, err := o.db.ExecContext(ctx, query, req.Benchmark, req.Source.Hex(), value.UpdatedAt.UTC(), value.Value, int16(value.Decimals))
	return err
}
