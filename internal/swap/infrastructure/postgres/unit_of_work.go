package postgres

import (
	"context"
	"database/sql"
	"errors"

	"irs-settlement/internal/eventing"
	eventingrepo "irs-settlement/internal/eventing/infrastructure/postgres"
	"irs-settlement/internal/swap/application"
)

// UnitOfWork runs each operation in one database transaction covering the
// agreement row, ledger balances and the event outbox.
type UnitOfWork struct {
	db       *sql.DB
	outbox   *eventingrepo.OutboxStore
	tenantID string
}

// NewUnitOfWork constructs a unit of work.
func NewUnitOfWork(db *sql.DB, outbox *eventingrepo.OutboxStore, tenantID string) (*UnitOfWork, error) {
	if db == nil {
		return nil, errors.New("swap uow: nil db")
	}
	if outbox == nil {
		outbox = eventingrepo.NewOutboxStore(db)
	}
	return &UnitOfWork{db: db, outbox: outbox, tenantID: tenantID}, nil
}

// Do runs fn inside a transaction. The agreement row read through tx is
// locked until commit or rollback.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	sqlTx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	tx := application.Tx{
		Agreements: NewAgreementRepository(sqlTx, true),
		Ledger:     NewLedger(sqlTx),
		Events:     eventing.NewSink(u.outbox.WithTx(sqlTx), u.tenantID),
	}
	if err := fn(ctx, tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}
