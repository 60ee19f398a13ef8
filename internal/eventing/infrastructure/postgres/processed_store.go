package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultProcessedTable = "processed_events"

// ProcessedStore records which consumer handled which event.
type ProcessedStore struct {
	db    DBTX
	table string
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore(db DBTX) *ProcessedStore {
	return &ProcessedStore{db: db, table: defaultProcessedTable}
}

// HasProcessed checks if event was already processed by consumer.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2)`, s.table)
	if err := s.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed records an event as processed. Repeated marks are no-ops.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, s.table)
	_, err := s.db.ExecContext(ctx, query, eventID, consumerName, time.Now().UTC())
	return err
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	return nil
}
