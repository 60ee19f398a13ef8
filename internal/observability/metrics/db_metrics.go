package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const gaugeQueryTimeout = 2 * time.Second

func registerDBMetrics(db *sql.DB, logger *zap.Logger) {
	gauges := []struct {
		name, help, query string
	}{
		{"event_outbox_pending", "Pending outbox records", "SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'"},
		{"event_dlq_count", "Dead letter queue records", "SELECT COUNT(*) FROM dead_letter_events"},
		{"agreements_active", "Active swap agreements", "SELECT COUNT(*) FROM swap_agreements WHERE status = 'active'"},
	}
	for _, g := range gauges {
		query := g.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + g.name, Help: g.help},
			func() float64 { return queryCount(db, logger, query) },
		))
	}
}

func queryCount(db *sql.DB, logger *zap.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), gaugeQueryTimeout)
	defer cancel()
	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", zap.String("query", query), zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
