package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Timeframe is the bar interval of requested market data
type Timeframe string

// Supported timeframes
const (
	TimeframeDay    Timeframe = "1d"
	TimeframeHour   Timeframe = "1h"
	TimeframeMinute Timeframe = "1m"
	TimeframeSecond Timeframe = "1s"
	TimeframeTick   Timeframe = "tick"
)

// PositionSizing selects how capital is allocated per trade
type PositionSizing string

// Position sizing modes
const (
	PositionSizingEqual      PositionSizing = "equal"
	PositionSizingPercent    PositionSizing = "percent"
	PositionSizingFixed      PositionSizing = "fixed"
	PositionSizingVolatility PositionSizing = "volatility"
)

// DefaultDataSource is the built-in synthetic market data source
const DefaultDataSource = "default"

// DefaultOutputMetrics are computed when a request names none
var DefaultOutputMetrics = []string{"sharpe_ratio", "max_drawdown", "total_return"}

// StrategyDefinition names a strategy template and its parameters
type StrategyDefinition struct {
	Name       string                 `json:"name" validate:"required"`
	Parameters map[string]interface{} `json:"parameters"`
	CustomCode *string                `json:"custom_code,omitempty"`
}

// DataRequest selects the market data a backtest runs over
type DataRequest struct {
	Symbols    []string  `json:"symbols" validate:"required,min=1,dive,required"`
	StartDate  Date      `json:"start_date"`
	EndDate    Date      `json:"end_date"`
	Timeframe  Timeframe `json:"timeframe" validate:"oneof=1d 1h 1m 1s tick"`
	DataSource string    `json:"data_source" validate:"required"`
}

// ExecutionParams are the simulated execution assumptions
type ExecutionParams struct {
	InitialCapital float64        `json:"initial_capital" validate:"gt=0"`
	PositionSize   PositionSizing `json:"position_size" validate:"oneof=equal percent fixed volatility"`
	Commission     float64        `json:"commission" validate:"gte=0,lt=1"`
	Slippage       float64        `json:"slippage" validate:"gte=0,lt=1"`
}

// OutputRequest selects what the result contains
type OutputRequest struct {
	Metrics            []string `json:"metrics"`
	IncludeTrades      bool     `json:"include_trades"`
	IncludeEquityCurve bool     `json:"include_equity_curve"`
}

// BacktestRequest is the payload of POST /api/v1/backtest
type BacktestRequest struct {
	Strategy  StrategyDefinition `json:"strategy"`
	Data      DataRequest        `json:"data"`
	Execution ExecutionParams    `json:"execution"`
	Output    OutputRequest      `json:"output"`
	Priority  int                `json:"priority" validate:"gte=0,lte=10"`
}

// DefaultExecutionParams returns the execution assumptions used when a request omits them
func DefaultExecutionParams() ExecutionParams {
	return ExecutionParams{
		InitialCapital: 100000,
		PositionSize:   PositionSizingEqual,
		Commission:     0.001,
		Slippage:       0.0005,
	}
}

// NewBacktestRequest returns a request populated with every default
func NewBacktestRequest() BacktestRequest {
	return BacktestRequest{
		Strategy: StrategyDefinition{Parameters: map[string]interface{}{}},
		Data: DataRequest{
			Timeframe:  TimeframeDay,
			DataSource: DefaultDataSource,
		},
		Execution: DefaultExecutionParams(),
		Output: OutputRequest{
			Metrics:            append([]string(nil), DefaultOutputMetrics...),
			IncludeTrades:      true,
			IncludeEquityCurve: true,
		},
	}
}

// DecodeBacktestRequest unmarshals a request on top of the defaults so omitted fields keep them
func DecodeBacktestRequest(data []byte) (BacktestRequest, error) {
	req := NewBacktestRequest()
	if err := json.Unmarshal(data, &req); err != nil {
		return BacktestRequest{}, fmt.Errorf("invalid backtest request: %w", err)
	}
	req.Normalize()
	return req, nil
}

// Normalize fills blank fields and canonicalizes symbols
func (r *BacktestRequest) Normalize() {
	if r.Strategy.Parameters == nil {
		r.Strategy.Parameters = map[string]interface{}{}
	}
	if r.Data.Timeframe == "" {
		r.Data.Timeframe = TimeframeDay
	}
	if r.Data.DataSource == "" {
		r.Data.DataSource = DefaultDataSource
	}
	if r.Execution.PositionSize == "" {
		r.Execution.PositionSize = PositionSizingEqual
	}
	if len(r.Output.Metrics) == 0 {
		r.Output.Metrics = append([]string(nil), DefaultOutputMetrics...)
	}
	for i, s := range r.Data.Symbols {
		r.Data.Symbols[i] = NormalizeSymbol(s)
	}
}

// WantsMetric reports whether the output selection includes the named metric
func (r *BacktestRequest) WantsMetric(name string) bool {
	for _, m := range r.Output.Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
