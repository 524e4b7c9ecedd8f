// Package metrics holds the Prometheus collectors for the loan engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_ledger_operations_total",
			Help: "Total number of ledger operations by result",
		},
		[]string{"operation", "result"},
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "loan_ledger_operation_duration_seconds",
			Help: "Duration of ledger operations in seconds",
		},
		[]string{"operation"},
	)

	BalanceConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_balance_conflicts_total",
			Help: "Balance writes that lost the version check after all retries",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveLedger records the outcome of one ledger operation.
func ObserveLedger(operation string, err error, started time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LedgerOperations.WithLabelValues(operation, result).Inc()
	LedgerOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
