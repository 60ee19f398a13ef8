package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"irs-settlement/internal/eventing"
	"irs-settlement/internal/eventing/eventbus"
	eventingrepo "irs-settlement/internal/eventing/infrastructure/postgres"
	"irs-settlement/internal/swap/application/events"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if !tableExists(db, "event_outbox") ||
		!tableExists(db, "processed_events") ||
		!tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")
	return db
}

func TestEventing_IdempotentConsumer(t *testing.T) {
	db := openDB(t)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry(events.All()...)
	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore, nil)
	sink := eventing.NewSink(outboxStore, "tenant-test")

	count := 0
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.Swap](), "consumer-a", func(ctx context.Context, event any) error {
		count++
		return nil
	}, processedStore)

	ctx := eventing.WithEventID(context.Background(), "evt-dup-001")
	ctx = eventing.WithTenantID(ctx, "tenant-test")

	payload := events.Swap{
		AgreementID: "swap-1",
		PaymentDate: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		Amount:      1250,
		Direction:   "payer_to_receiver",
		OccurredAt:  time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC),
	}

	if err := sink.Append(ctx, payload); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := sink.Append(ctx, payload); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, 10); err != nil {
		t.Fatalf("dispatch duplicate: %v", err)
	}

	if count != 1 {
		t.Fatalf("expected handler once, got %d", count)
	}
}

func TestEventing_DLQOnFailure(t *testing.T) {
	db := openDB(t)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry(events.All()...)
	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore, nil)
	sink := eventing.NewSink(outboxStore, "tenant-test")

	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.TerminateSwap](), "consumer-fail", func(ctx context.Context, event any) error {
		return errors.New("boom")
	}, processedStore)

	payload := events.TerminateSwap{
		AgreementID: "swap-2",
		OccurredAt:  time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()
	if err := sink.Append(ctx, payload); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	var dlqCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dead_letter_events WHERE agreement_id = $1", "swap-2").Scan(&dlqCount); err != nil {
		t.Fatalf("count dlq: %v", err)
	}
	if dlqCount != 1 {
		t.Fatalf("expected 1 dlq record, got %d", dlqCount)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
