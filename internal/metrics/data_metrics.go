package metrics

import "github.com/prometheus/client_golang/prometheus"

// Market data and advisor metrics
var (
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	DataFetchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_fetch_errors_total",
		Help:      "Market data fetch failures by provider",
	}, []string{"provider"})

	DataFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "data_fetch_duration_seconds",
		Help:      "Latency of market data fetches by provider",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	AdvisorCandidatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "advisor_candidates_total",
		Help:      "Strategy candidates evaluated by the advisor",
	}, []string{"source"})

	AdvisorRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "advisor_requests_total",
		Help:      "Remote advisor requests by outcome",
	}, []string{"outcome"})

	CircuitBreakerTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Times an outbound client opened its circuit breaker",
	}, []string{"client"})
)

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordDataFetch records a provider fetch and whether it failed.
func RecordDataFetch(provider string, durationSeconds float64, err error) {
	DataFetchDuration.WithLabelValues(provider).Observe(durationSeconds)
	if err != nil {
		DataFetchErrorsTotal.WithLabelValues(provider).Inc()
	}
}

// RecordAdvisorCandidates records scored candidates.
func RecordAdvisorCandidates(source string, count int) {
	AdvisorCandidatesTotal.WithLabelValues(source).Add(float64(count))
}

// RecordAdvisorRequest records a remote advisor call outcome.
func RecordAdvisorRequest(outcome string) {
	AdvisorRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordCircuitBreakerTrip records a circuit breaker opening.
func RecordCircuitBreakerTrip(client string) {
	CircuitBreakerTripsTotal.WithLabelValues(client).Inc()
}
