package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
	assert.Same(t, registry, InitRegistry())
}

func TestRecordHTTPRequest(t *testing.T) {
	InitRegistry()
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/v1/strategies", "GET", "200"))

	RecordHTTPRequest("/api/v1/strategies", "GET", "200", 0.01)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/v1/strategies", "GET", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordBacktestJob(t *testing.T) {
	InitRegistry()
	before := testutil.ToFloat64(BacktestJobsTotal.WithLabelValues("backtest", "completed"))

	RecordBacktestJob("backtest", "completed")
	RecordBacktestDuration("backtest", "MomentumStrategy", 1.2)
	RecordTrades("MomentumStrategy", 4)

	assert.Equal(t, before+1, testutil.ToFloat64(BacktestJobsTotal.WithLabelValues("backtest", "completed")))
}

func TestUpdateQueue(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name   string
		queued int
		active int
	}{
		{name: "idle", queued: 0, active: 0},
		{name: "busy", queued: 12, active: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			UpdateQueue(tt.queued, tt.active)
			assert.Equal(t, float64(tt.queued), testutil.ToFloat64(QueueDepth))
			assert.Equal(t, float64(tt.active), testutil.ToFloat64(ActiveWorkers))
		})
	}
}

func TestUpdateStoredBacktests(t *testing.T) {
	InitRegistry()

	UpdateStoredBacktests(map[string]int{"pending": 2, "completed": 5})
	assert.Equal(t, 5.0, testutil.ToFloat64(BacktestsByStatus.WithLabelValues("completed")))

	UpdateStoredBacktests(map[string]int{"failed": 1})
	assert.Equal(t, 1, testutil.CollectAndCount(BacktestsByStatus))
}

func TestDataMetrics(t *testing.T) {
	InitRegistry()
	hits := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("market_data", "hit"))
	errs := testutil.ToFloat64(DataFetchErrorsTotal.WithLabelValues("tiingo"))

	RecordCacheLookup("market_data", true)
	RecordDataFetch("tiingo", 0.2, errors.New("timeout"))
	RecordDataFetch("tiingo", 0.1, nil)

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("market_data", "hit")))
	assert.Equal(t, errs+1, testutil.ToFloat64(DataFetchErrorsTotal.WithLabelValues("tiingo")))

	assert.NotPanics(t, func() {
		RecordAdvisorCandidates("local", 12)
		RecordAdvisorRequest("success")
		RecordCircuitBreakerTrip("tiingo")
		RecordRetentionDeleted(3)
		UpdateDBConnections(10, 4, 6)
		UpdateWebsocketClients(2)
		RecordRateLimited()
	})
}

func TestMetricsHandler(t *testing.T) {
	RecordHTTPRequest("/health", "GET", "200", 0.001)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "stocktester_http_requests_total"))
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordHTTPRequest("/api/v1/backtest", "POST", "202", 0.003)
	}
}
