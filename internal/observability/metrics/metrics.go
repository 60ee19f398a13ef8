package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "irs_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	settlementTotal   *prometheus.CounterVec
	settlementLatency *prometheus.HistogramVec
	settledAmount     *prometheus.CounterVec

	terminationTotal *prometheus.CounterVec
	creationTotal    *prometheus.CounterVec

	oracleErrors  *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec

	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDelivered       *prometheus.CounterVec

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec
)

// Init registers metrics. With a db, outbox backlog gauges are added.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total period settlement attempts by result",
			},
			[]string{"result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Period settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settledAmount = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settled_amount_total",
				Help: "Sum of net amounts transferred, in asset base units",
			},
			[]string{"direction"},
		)
		terminationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "termination_total",
				Help: "Total termination attempts by result",
			},
			[]string{"result"},
		)
		creationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "agreement_created_total",
				Help: "Total agreement creation attempts by result",
			},
			[]string{"result"},
		)
		oracleErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "oracle_errors_total",
				Help: "Oracle read failures by reason",
			},
			[]string{"reason"},
		)
		oracleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "oracle_latency_seconds",
				Help:    "Oracle read latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDelivered = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_events_total",
				Help: "Outbox events handled by dispatch outcome",
			},
			[]string{"outcome"},
		)
		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			settlementTotal,
			settlementLatency,
			settledAmount,
			terminationTotal,
			creationTotal,
			oracleErrors,
			oracleLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDelivered,
			statementExportTotal,
			statementExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ObserveSettlement records a settlement attempt.
func ObserveSettlement(result string, duration time.Duration) {
	result = orDefault(result, resultSuccess)
	if settlementTotal != nil {
		settlementTotal.WithLabelValues(result).Inc()
	}
	if settlementLatency != nil {
		settlementLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddSettledAmount adds a transferred net amount.
func AddSettledAmount(direction string, amount int64) {
	if amount <= 0 || settledAmount == nil {
		return
	}
	settledAmount.WithLabelValues(orDefault(direction, "unknown")).Add(float64(amount))
}

// IncTermination increments the termination counter.
func IncTermination(result string) {
	if terminationTotal != nil {
		terminationTotal.WithLabelValues(orDefault(result, resultSuccess)).Inc()
	}
}

// IncAgreementCreated increments the creation counter.
func IncAgreementCreated(result string) {
	if creationTotal != nil {
		creationTotal.WithLabelValues(orDefault(result, resultSuccess)).Inc()
	}
}

// IncOracleError increments oracle failures.
func IncOracleError(reason string) {
	if oracleErrors != nil {
		oracleErrors.WithLabelValues(orDefault(reason, "unknown")).Inc()
	}
}

// ObserveOracle records oracle read latency.
func ObserveOracle(source string, duration time.Duration) {
	if oracleLatency != nil {
		oracleLatency.WithLabelValues(orDefault(source, "unknown")).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed int) {
	result = orDefault(result, resultSuccess)
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDelivered != nil {
		if sent > 0 {
			outboxDelivered.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDelivered.WithLabelValues("failed").Add(float64(failed))
		}
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	format = orDefault(format, "unknown")
	result = orDefault(result, resultSuccess)
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
