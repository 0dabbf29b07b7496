// Package metrics provides Prometheus instrumentation for the splitpay service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splitpay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SplitsExecutedTotal counts successful split executions.
	SplitsExecutedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "splitpay",
		Name:      "splits_executed_total",
		Help:      "Total split executions committed to the ledger.",
	})

	// SplitExecutionFailuresTotal counts rejected split executions by reason.
	SplitExecutionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Name:      "split_execution_failures_total",
			Help:      "Total rejected split executions by reason.",
		},
		[]string{"reason"},
	)

	// ClaimsTotal counts successful balance claims.
	ClaimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "splitpay",
		Name:      "claims_total",
		Help:      "Total successful claimAll payouts.",
	})

	// ValidationFailuresTotal counts split config validation failures.
	ValidationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "splitpay",
		Name:      "split_config_validation_failures_total",
		Help:      "Total split configurations rejected by the validator.",
	})

	// LedgerPaused is 1 while the settlement ledger is paused.
	LedgerPaused = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitpay",
		Name:      "ledger_paused",
		Help:      "1 when the settlement ledger is paused, 0 otherwise.",
	})

	// TreasuryTransfersTotal counts platform fee transfers by result.
	TreasuryTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Name:      "treasury_transfers_total",
			Help:      "Total platform fee transfers to the treasury by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "splitpay",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitpay", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitpay", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitpay", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SplitsExecutedTotal,
		SplitExecutionFailuresTotal,
		ClaimsTotal,
		ValidationFailuresTotal,
		LedgerPaused,
		TreasuryTransfersTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
