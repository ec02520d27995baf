package models

import (
	"encoding/json"
	"fmt"
)

// Advisor objectives
const (
	ObjectiveSharpe  = "sharpe_ratio"
	ObjectiveReturn  = "total_return"
	ObjectiveSortino = "sortino_ratio"
	ObjectiveCalmar  = "calmar_ratio"
)

// AIBacktestRequest is the payload of POST /api/v1/ai/backtest.
// The advisor searches strategy templates and parameters for the best
// score on Objective over the requested data.
type AIBacktestRequest struct {
	Data          DataRequest     `json:"data"`
	Execution     ExecutionParams `json:"execution"`
	Objective     string          `json:"objective" validate:"oneof=sharpe_ratio total_return sortino_ratio calmar_ratio"`
	Strategies    []string        `json:"strategies,omitempty"`
	MaxCandidates int             `json:"max_candidates" validate:"gte=1,lte=500"`
	Priority      int             `json:"priority" validate:"gte=0,lte=10"`
}

// DecodeAIBacktestRequest unmarshals an advisor request on top of its defaults
func DecodeAIBacktestRequest(data []byte) (AIBacktestRequest, error) {
	req := AIBacktestRequest{
		Data:          DataRequest{Timeframe: TimeframeDay, DataSource: DefaultDataSource},
		Execution:     DefaultExecutionParams(),
		Objective:     ObjectiveSharpe,
		MaxCandidates: 50,
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return AIBacktestRequest{}, fmt.Errorf("invalid ai backtest request: %w", err)
	}
	if req.Data.Timeframe == "" {
		req.Data.Timeframe = TimeframeDay
	}
	if req.Data.DataSource == "" {
		req.Data.DataSource = DefaultDataSource
	}
	if req.Objective == "" {
		req.Objective = ObjectiveSharpe
	}
	for i, s := range req.Data.Symbols {
		req.Data.Symbols[i] = NormalizeSymbol(s)
	}
	return req, nil
}

// BacktestFor builds the plain backtest request for one candidate
func (r AIBacktestRequest) BacktestFor(strategy string, params map[string]interface{}) BacktestRequest {
	req := NewBacktestRequest()
	req.Strategy = StrategyDefinition{Name: strategy, Parameters: params}
	req.Data = r.Data
	req.Execution = r.Execution
	req.Output.Metrics = []string{
		"sharpe_ratio", "max_drawdown", "total_return", "volatility",
		"cagr", "calmar_ratio", "sortino_ratio",
	}
	req.Output.IncludeTrades = false
	req.Output.IncludeEquityCurve = false
	return req
}

// StrategyCandidate is one scored strategy/parameter combination
type StrategyCandidate struct {
	Strategy   string                 `json:"strategy"`
	Parameters map[string]interface{} `json:"parameters"`
	Score      float64                `json:"score"`
	Metrics    BacktestMetrics        `json:"metrics"`
}

// RobustnessReport summarizes a Monte Carlo resampling of the best candidate's trades
type RobustnessReport struct {
	Iterations        int     `json:"iterations"`
	ReturnP5          float64 `json:"return_p5"`
	ReturnP50         float64 `json:"return_p50"`
	ReturnP95         float64 `json:"return_p95"`
	MaxDrawdownP95    float64 `json:"max_drawdown_p95"`
	ProbabilityOfLoss float64 `json:"probability_of_loss"`
}

// AIBacktestResult is stored as the results of an ai job
type AIBacktestResult struct {
	Objective  string              `json:"objective"`
	Source     string              `json:"source"`
	Best       *StrategyCandidate  `json:"best"`
	Candidates []StrategyCandidate `json:"candidates"`
	Evaluated  int                 `json:"evaluated"`
	Robustness *RobustnessReport   `json:"robustness,omitempty"`
	Backtest   *BacktestResult     `json:"backtest,omitempty"`
}
