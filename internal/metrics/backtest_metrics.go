package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest job metrics
var (
	BacktestJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtest_jobs_total",
		Help:      "Total number of backtest job transitions by kind and status",
	}, []string{"kind", "status"})

	BacktestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest jobs in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
	}, []string{"kind", "strategy"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Number of jobs waiting for a worker",
	})

	ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Number of workers currently running a job",
	})

	TradesGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_generated_total",
		Help:      "Total number of trades generated by strategy",
	}, []string{"strategy"})

	BacktestsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backtests_stored",
		Help:      "Number of stored backtest records by status",
	}, []string{"status"})
)

// RecordBacktestJob records a job reaching status.
func RecordBacktestJob(kind, status string) {
	BacktestJobsTotal.WithLabelValues(kind, status).Inc()
}

// RecordBacktestDuration records how long a job ran.
func RecordBacktestDuration(kind, strategy string, durationSeconds float64) {
	BacktestDuration.WithLabelValues(kind, strategy).Observe(durationSeconds)
}

// UpdateQueue sets the queue and worker gauges.
func UpdateQueue(queued, active int) {
	QueueDepth.Set(float64(queued))
	ActiveWorkers.Set(float64(active))
}

// RecordTrades adds generated trades for a strategy.
func RecordTrades(strategy string, count int) {
	TradesGeneratedTotal.WithLabelValues(strategy).Add(float64(count))
}

// UpdateStoredBacktests sets the per-status record gauge.
func UpdateStoredBacktests(counts map[string]int) {
	BacktestsByStatus.Reset()
	for status, n := range counts {
		BacktestsByStatus.WithLabelValues(status).Set(float64(n))
	}
}
