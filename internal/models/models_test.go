package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []BacktestStatus{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to BacktestStatus
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusRunning, StatusCancelled, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusesNeverRegress(t *testing.T) {
	rank := map[BacktestStatus]int{
		StatusPending:   0,
		StatusRunning:   1,
		StatusCompleted: 2,
		StatusFailed:    2,
		StatusCancelled: 2,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if CanTransition(from, to) {
				assert.Greater(t, rank[to], rank[from], "%s -> %s", from, to)
			}
		}
		if from.IsTerminal() {
			for _, to := range allStatuses {
				assert.False(t, CanTransition(from, to), "%s is terminal but reaches %s", from, to)
			}
		}
	}
}

func TestSourceStatusesMatchTransitions(t *testing.T) {
	for _, to := range allStatuses {
		sources := SourceStatuses(to)
		for _, from := range allStatuses {
			assert.Equal(t, CanTransition(from, to), containsStatus(sources, from), "%s -> %s", from, to)
		}
	}
	assert.Empty(t, SourceStatuses(StatusPending))
	assert.ElementsMatch(t, []BacktestStatus{StatusPending, StatusRunning}, SourceStatuses(StatusFailed))
}

func containsStatus(list []BacktestStatus, s BacktestStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestStatusHelpers(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, BacktestStatus("paused").Valid())
	assert.Regexp(t, `^bt-[0-9a-f]{8}$`, NewBacktestID())
}

func TestDecodeBacktestRequestDefaults(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, req BacktestRequest)
	}{
		{
			name: "omitted sections keep defaults",
			body: `{"strategy":{"name":"MeanReversion"},"data":{"symbols":[" aapl "]}}`,
			check: func(t *testing.T, req BacktestRequest) {
				assert.Equal(t, []string{"AAPL"}, req.Data.Symbols)
				assert.Equal(t, TimeframeDay, req.Data.Timeframe)
				assert.Equal(t, DefaultDataSource, req.Data.DataSource)
				assert.Equal(t, DefaultExecutionParams(), req.Execution)
				assert.Equal(t, DefaultOutputMetrics, req.Output.Metrics)
				assert.True(t, req.Output.IncludeTrades)
				assert.True(t, req.Output.IncludeEquityCurve)
				assert.NotNil(t, req.Strategy.Parameters)
			},
		},
		{
			name: "explicit false survives",
			body: `{"output":{"include_trades":false}}`,
			check: func(t *testing.T, req BacktestRequest) {
				assert.False(t, req.Output.IncludeTrades)
				assert.True(t, req.Output.IncludeEquityCurve)
			},
		},
		{
			name: "empty metrics fall back",
			body: `{"output":{"metrics":[]}}`,
			check: func(t *testing.T, req BacktestRequest) {
				assert.Equal(t, DefaultOutputMetrics, req.Output.Metrics)
			},
		},
		{
			name: "explicit metrics kept",
			body: `{"output":{"metrics":["sortino_ratio"]}}`,
			check: func(t *testing.T, req BacktestRequest) {
				assert.Equal(t, []string{"sortino_ratio"}, req.Output.Metrics)
				assert.True(t, req.WantsMetric("sortino_ratio"))
				assert.False(t, req.WantsMetric("sharpe_ratio"))
			},
		},
		{
			name: "dates accept timestamps",
			body: `{"data":{"start_date":"2021-03-04T15:00:00Z","end_date":"2021-06-30"}}`,
			check: func(t *testing.T, req BacktestRequest) {
				assert.Equal(t, NewDate(2021, time.March, 4), req.Data.StartDate)
				assert.Equal(t, NewDate(2021, time.June, 30), req.Data.EndDate)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeBacktestRequest([]byte(tt.body))
			require.NoError(t, err)
			tt.check(t, req)
		})
	}
}

func TestDecodeBacktestRequestErrors(t *testing.T) {
	_, err := DecodeBacktestRequest([]byte(`{"data":`))
	assert.Error(t, err)

	_, err = DecodeBacktestRequest([]byte(`{"data":{"start_date":"03/04/2021"}}`))
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2022-01-31", want: NewDate(2022, time.January, 31)},
		{in: " 2022-01-31 ", want: NewDate(2022, time.January, 31)},
		{in: "2022-01-31T23:30:00Z", want: NewDate(2022, time.January, 31)},
		{in: "2022-01-31T23:30:00-05:00", want: NewDate(2022, time.February, 1)},
		{in: "2022-02-30", wantErr: true},
		{in: "31/01/2022", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Set   Date `json:"set"`
		Unset Date `json:"unset"`
	}{Set: NewDate(2020, time.July, 4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"set":"2020-07-04","unset":null}`, string(raw))

	var d Date
	require.NoError(t, json.Unmarshal([]byte("null"), &d))
	assert.True(t, d.IsZero())
	assert.Error(t, json.Unmarshal([]byte("20200704"), &d))
}
