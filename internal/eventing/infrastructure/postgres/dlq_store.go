package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"irs-settlement/internal/eventing"
)

const (
	defaultDLQTable = "dead_letter_events"
	maxErrorLength  = 2000
)

// DLQStore keeps events whose delivery failed.
type DLQStore struct {
	db    DBTX
	table string
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db DBTX) *DLQStore {
	return &DLQStore{db: db, table: defaultDLQTable}
}

// RecordFailure upserts a DLQ record and counts attempts per event.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
		if len(message) > maxErrorLength {
			message = message[:maxErrorLength]
		}
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	event_id, event_type, agreement_id, payload, error, first_seen_at, last_seen_at, attempts
) VALUES (
	$1, $2, $3, $4, $5, $6, $6, 1
)
ON CONFLICT (event_id)
DO UPDATE SET
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %[1]s.attempts + 1`, s.table)

	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, env.AgreementID, payload, message, time.Now().UTC())
	return err
}
