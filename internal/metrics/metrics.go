// Package metrics provides the centralized Prometheus registry for StockTester.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stocktester"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of API requests by route, method and status code",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency of API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Total number of API requests rejected by the rate limiter",
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Number of connected websocket clients",
	})
)

// Database metrics
var (
	DBConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections",
		Help:      "Database pool connections by state",
	}, []string{"state"})

	RetentionDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_deleted_total",
		Help:      "Total number of backtest records removed by retention cleanup",
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

		registry.MustRegister(HTTPRequestsTotal)
		registry.MustRegister(HTTPRequestDuration)
		registry.MustRegister(RateLimitedTotal)
		registry.MustRegister(WebsocketClients)
		registry.MustRegister(DBConnections)
		registry.MustRegister(RetentionDeletedTotal)

		registry.MustRegister(BacktestJobsTotal)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(QueueDepth)
		registry.MustRegister(ActiveWorkers)
		registry.MustRegister(TradesGeneratedTotal)
		registry.MustRegister(BacktestsByStatus)

		registry.MustRegister(CacheLookupsTotal)
		registry.MustRegister(DataFetchErrorsTotal)
		registry.MustRegister(DataFetchDuration)
		registry.MustRegister(AdvisorCandidatesTotal)
		registry.MustRegister(AdvisorRequestsTotal)
		registry.MustRegister(CircuitBreakerTripsTotal)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(route, method, code string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, method, code).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(durationSeconds)
}

// RecordRateLimited records a request rejected with 429.
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}

// UpdateWebsocketClients sets the connected websocket client gauge.
func UpdateWebsocketClients(count int) {
	WebsocketClients.Set(float64(count))
}

// UpdateDBConnections sets the pool gauges.
func UpdateDBConnections(total, idle, acquired int32) {
	DBConnections.WithLabelValues("total").Set(float64(total))
	DBConnections.WithLabelValues("idle").Set(float64(idle))
	DBConnections.WithLabelValues("acquired").Set(float64(acquired))
}

// RecordRetentionDeleted records records removed by retention cleanup.
func RecordRetentionDeleted(count int64) {
	RetentionDeletedTotal.Add(float64(count))
}
