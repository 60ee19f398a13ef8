package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	swap "irs-settlement/internal/swap/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	benchmarkKindManual = "manual"
	benchmarkKindOracle = "oracle"

	scheduleKindFrequency = "frequency"
	scheduleKindExplicit  = "explicit"
)

// AgreementRepository persists agreements, their payment dates and their
// settlement records.
type AgreementRepository struct {
	db        DBTX
	forUpdate bool
}

// NewAgreementRepository constructs a repository. With forUpdate, Get locks
// the agreement row until the surrounding transaction ends.
func NewAgreementRepository(db DBTX, forUpdate bool) *AgreementRepository {
	return &AgreementRepository{db: db, forUpdate: forUpdate}
}

const selectAgreement = `
SELECT id, payer, receiver, asset, notional, fixed_rate, spread, rates_decimals,
	benchmark, benchmark_kind, manual_value, oracle_address, schedule_kind, frequency_seconds,
	starting_date, maturity_date, day_count, status, terminated_by, terminated_at,
	created_at, version
FROM swap_agreements`

// Get loads an agreement.
func (r *AgreementRepository) Get(ctx context.Context, id string) (*swap.Agreement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("swap repo: nil db")
	}
	query := selectAgreement + ` WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}
	snap, err := scanAgreement(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", swap.ErrAgreementNotFound, id)
		}
		return nil, err
	}
	if err := r.loadChildren(ctx, &snap); err != nil {
		return nil, err
	}
	return swap.RestoreAgreement(snap)
}

// List returns agreements ordered by id.
func (r *AgreementRepository) List(ctx context.Context) ([]*swap.Agreement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("swap repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectAgreement+` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	var snaps []swap.Snapshot
	for rows.Next() {
		snap, err := scanAgreement(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	result := make([]*swap.Agreement, 0, len(snaps))
	for i := range snaps {
		if err := r.loadChildren(ctx, &snaps[i]); err != nil {
			return nil, err
		}
		agreement, err := swap.RestoreAgreement(snaps[i])
		if err != nil {
			return nil, err
		}
		result = append(result, agreement)
	}
	return result, nil
}

// Save inserts a new agreement or updates a persisted one under optimistic
// version control.
func (r *AgreementRepository) Save(ctx context.Context, agreement *swap.Agreement) error {
	if r == nil || r.db == nil {
		return errors.New("swap repo: nil db")
	}
	if agreement == nil {
		return swap.ErrNilAggregate
	}
	snap := agreement.Snapshot()
	now := time.Now().UTC()

	if agreement.IsNew() {
		if err := r.insert(ctx, snap, now); err != nil {
			return err
		}
	} else {
		res, err := r.db.ExecContext(ctx, `
UPDATE swap_agreements
SET status = $1, terminated_by = $2, terminated_at = $3, updated_at = $4, version = version + 1
WHERE id = $5 AND version = $6`,
			string(snap.Status), nullableAddress(snap.TerminatedBy), nullableTime(snap.TerminatedAt), now, snap.Terms.ID, snap.Version)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("swap repo: version conflict on %s", snap.Terms.ID)
		}
	}

	for _, s := range snap.Settlements {
		if err := r.insertSettlement(ctx, snap.Terms.ID, s); err != nil {
			return err
		}
	}
	agreement.MarkPersisted()
	return nil
}

func (r *AgreementRepository) insert(ctx context.Context, snap swap.Snapshot, now time.Time) error {
	t := snap.Terms
	var (
		manualValue   sql.NullInt64
		oracleAddress sql.NullString
		frequency     sql.NullInt64
		benchmarkKind = benchmarkKindManual
		scheduleKind  = scheduleKindExplicit
	)
	if value, ok := t.BenchmarkSource.ManualValue(); ok {
		manualValue = sql.NullInt64{Int64: value, Valid: true}
	}
	if addr, ok := t.BenchmarkSource.Oracle(); ok {
		benchmarkKind = benchmarkKindOracle
		oracleAddress = sql.NullString{String: addr.Hex(), Valid: true}
	}
	if every, ok := t.Schedule.Frequency(); ok {
		scheduleKind = scheduleKindFrequency
		frequency = sql.NullInt64{Int64: int64(every / time.Second), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO swap_agreements (
	id, payer, receiver, asset, notional, fixed_rate, spread, rates_decimals,
	benchmark, benchmark_kind, manual_value, oracle_address, schedule_kind, frequency_seconds,
	starting_date, maturity_date, day_count, status, created_at, updated_at, version
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)`,
		t.ID, t.Payer.Hex(), t.Receiver.Hex(), t.Asset.Hex(), t.Notional, t.FixedRate, t.Spread, int16(t.RatesDecimals),
		t.Benchmark, benchmarkKind, manualValue, oracleAddress, scheduleKind, frequency,
		t.StartingDate, t.MaturityDate, string(t.DayCount), string(snap.Status), snap.CreatedAt, now, snap.Version+1,
	)
	if err != nil {
		return err
	}
	for i, date := range snap.PaymentDates {
		if _, err := r.db.ExecContext(ctx, `
INSERT INTO swap_payment_dates (agreement_id, seq, payment_date) VALUES ($1, $2, $3)`,
			t.ID, i, date); err != nil {
			return err
		}
	}
	return nil
}

func (r *AgreementRepository) insertSettlement(ctx context.Context, agreementID string, s swap.PeriodSettlement) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO swap_period_settlements (
	agreement_id, payment_date, period_start, period_end, fixed_rate, benchmark_value, spread,
	floating_rate, quote_observed_at, quote_source, fixed_leg, floating_leg, net, amount,
	direction, from_account, to_account, settled_by, settled_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)
ON CONFLICT (agreement_id, payment_date) DO NOTHING`,
		agreementID, s.PaymentDate, s.PeriodStart, s.PeriodEnd, s.FixedRate, s.Benchmark, s.Spread,
		s.FloatingRate, nullableTime(s.QuoteObservedAt), s.QuoteSource, s.FixedLeg, s.FloatingLeg, s.Net, s.Amount,
		s.Direction.String(), s.From.Hex(), s.To.Hex(), s.SettledBy.Hex(), s.SettledAt,
	)
	return err
}

func (r *AgreementRepository) loadChildren(ctx context.Context, snap *swap.Snapshot) error {
	id := snap.Terms.ID
	rows, err := r.db.QueryContext(ctx, `
SELECT d.payment_date, s.payment_date IS NOT NULL
FROM swap_payment_dates d
LEFT JOIN swap_period_settlements s
	ON s.agreement_id = d.agreement_id AND s.payment_date = d.payment_date
WHERE d.agreement_id = $1
ORDER BY d.seq ASC`, id)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			date    time.Time
			settled bool
		)
		if err := rows.Scan(&date, &settled); err != nil {
			rows.Close()
			return err
		}
		snap.PaymentDates = append(snap.PaymentDates, date.UTC())
		snap.Settled = append(snap.Settled, settled)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	if _, explicit := snap.Terms.Schedule.Dates(); explicit {
		snap.Terms.Schedule = swap.ExplicitSchedule(snap.PaymentDates)
	}

	settlements, err := r.db.QueryContext(ctx, `
SELECT payment_date, period_start, period_end, fixed_rate, benchmark_value, spread,
	floating_rate, quote_observed_at, quote_source, fixed_leg, floating_leg, net, amount,
	direction, from_account, to_account, settled_by, settled_at
FROM swap_period_settlements
WHERE agreement_id = $1
ORDER BY payment_date ASC`, id)
	if err != nil {
		return err
	}
	defer settlements.Close()
	for settlements.Next() {
		var (
			s                           swap.PeriodSettlement
			observedAt                  sql.NullTime
			direction, from, to, caller string
		)
		if err := settlements.Scan(&s.PaymentDate, &s.PeriodStart, &s.PeriodEnd, &s.FixedRate, &s.Benchmark, &s.Spread,
			&s.FloatingRate, &observedAt, &s.QuoteSource, &s.FixedLeg, &s.FloatingLeg, &s.Net, &s.Amount,
			&direction, &from, &to, &caller, &s.SettledAt); err != nil {
			return err
		}
		if s.Direction, err = swap.ParseDirection(direction); err != nil {
			return err
		}
		s.PaymentDate = s.PaymentDate.UTC()
		s.PeriodStart = s.PeriodStart.UTC()
		s.PeriodEnd = s.PeriodEnd.UTC()
		s.SettledAt = s.SettledAt.UTC()
		if observedAt.Valid {
			s.QuoteObservedAt = observedAt.Time.UTC()
		}
		s.From = common.HexToAddress(from)
		s.To = common.HexToAddress(to)
		s.SettledBy = common.HexToAddress(caller)
		snap.Settlements = append(snap.Settlements, s)
	}
	return settlements.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (swap.Snapshot, error) {
	var (
		snap                        swap.Snapshot
		payer, receiver, asset      string
		ratesDecimals               int16
		benchmarkKind, scheduleKind string
		manualValue, frequency      sql.NullInt64
		oracleAddress, terminatedBy sql.NullString
		terminatedAt                sql.NullTime
		dayCount, status            string
	)
	t := &snap.Terms
	err := row.Scan(&t.ID, &payer, &receiver, &asset, &t.Notional, &t.FixedRate, &t.Spread, &ratesDecimals,
		&t.Benchmark, &benchmarkKind, &manualValue, &oracleAddress, &scheduleKind, &frequency,
		&t.StartingDate, &t.MaturityDate, &dayCount, &status, &terminatedBy, &terminatedAt,
		&snap.CreatedAt, &snap.Version)
	if err != nil {
		return swap.Snapshot{}, err
	}
	if ratesDecimals < 0 || ratesDecimals > swap.MaxRatesDecimals {
		return swap.Snapshot{}, fmt.Errorf("swap repo: invalid rates decimals %d", ratesDecimals)
	}
	t.Payer = common.HexToAddress(payer)
	t.Receiver = common.HexToAddress(receiver)
	t.Asset = common.HexToAddress(asset)
	t.RatesDecimals = uint8(ratesDecimals)
	t.DayCount = swap.DayCount(dayCount)
	t.StartingDate = t.StartingDate.UTC()
	t.MaturityDate = t.MaturityDate.UTC()

	switch benchmarkKind {
	case benchmarkKindManual:
		t.BenchmarkSource = swap.ManualBenchmark(manualValue.Int64)
	case benchmarkKindOracle:
		t.BenchmarkSource = swap.OracleBenchmark(common.HexToAddress(oracleAddress.String))
	default:
		return swap.Snapshot{}, fmt.Errorf("swap repo: unknown benchmark kind %q", benchmarkKind)
	}
	switch scheduleKind {
	case scheduleKindFrequency:
		t.Schedule = swap.FrequencySchedule(time.Duration(frequency.Int64) * time.Second)
	case scheduleKindExplicit:
		t.Schedule = swap.ExplicitSchedule(nil)
	default:
		return swap.Snapshot{}, fmt.Errorf("swap repo: unknown schedule kind %q", scheduleKind)
	}

	snap.Status = swap.Status(status)
	if terminatedBy.Valid {
		snap.TerminatedBy = common.HexToAddress(terminatedBy.String)
	}
	if terminatedAt.Valid {
		snap.TerminatedAt = terminatedAt.Time.UTC()
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullableAddress(addr common.Address) sql.NullString {
	if addr == (common.Address{}) {
		return sql.NullString{}
	}
	return sql.NullString{String: addr.Hex(), Valid: true}
}
