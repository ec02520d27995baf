package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BacktestStatus is the lifecycle state of a backtest job
type BacktestStatus string

// Backtest statuses
const (
	StatusPending   BacktestStatus = "pending"
	StatusRunning   BacktestStatus = "running"
	StatusCompleted BacktestStatus = "completed"
	StatusFailed    BacktestStatus = "failed"
	StatusCancelled BacktestStatus = "cancelled"
)

// JobKind distinguishes plain backtests from advisor searches
type JobKind string

// Job kinds
const (
	JobKindBacktest JobKind = "backtest"
	JobKindAI       JobKind = "ai"
)

var allowedTransitions = map[BacktestStatus][]BacktestStatus{
	StatusPending: {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether a record may move from one status to another.
// Terminal statuses never change.
func CanTransition(from, to BacktestStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourceStatuses lists the statuses from which to is reachable
func SourceStatuses(to BacktestStatus) []BacktestStatus {
	var from []BacktestStatus
	for src, targets := range allowedTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

// IsTerminal reports whether no further transition is possible
func (s BacktestStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Valid reports whether s is a known status
func (s BacktestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NewBacktestID returns an id of the form bt-xxxxxxxx
func NewBacktestID() string {
	return "bt-" + uuid.New().String()[:8]
}

// BacktestRecord is a persisted backtest job
type BacktestRecord struct {
	ID            string          `db:"id" json:"id"`
	UserID        *uuid.UUID      `db:"user_id" json:"user_id,omitempty"`
	Kind          JobKind         `db:"kind" json:"kind"`
	Request       json.RawMessage `db:"request" json:"request"`
	Status        BacktestStatus  `db:"status" json:"status"`
	Priority      int             `db:"priority" json:"priority"`
	Results       json.RawMessage `db:"results" json:"results,omitempty"`
	Error         *string         `db:"error" json:"error,omitempty"`
	ExecutionTime float64         `db:"execution_time" json:"execution_time"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	StartedAt     *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// BacktestResponse is the polling payload for a backtest job
type BacktestResponse struct {
	BacktestID    string          `json:"backtest_id"`
	Status        BacktestStatus  `json:"status"`
	ExecutionTime float64         `json:"execution_time"`
	Results       json.RawMessage `json:"results"`
	Error         *string         `json:"error,omitempty"`
}

// ToResponse converts the stored record into its API shape
func (r *BacktestRecord) ToResponse() BacktestResponse {
	results := r.Results
	if len(results) == 0 {
		results = json.RawMessage("null")
	}
	return BacktestResponse{
		BacktestID:    r.ID,
		Status:        r.Status,
		ExecutionTime: r.ExecutionTime,
		Results:       results,
		Error:         r.Error,
	}
}

// DecodeRequest unmarshals the stored backtest request
func (r *BacktestRecord) DecodeRequest() (BacktestRequest, error) {
	req, err := DecodeBacktestRequest(r.Request)
	if err != nil {
		return BacktestRequest{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return req, nil
}

// BacktestMetrics are the aggregate performance figures of a run.
// A nil field was not requested or could not be computed.
type BacktestMetrics struct {
	SharpeRatio          *float64 `json:"sharpe_ratio"`
	MaxDrawdown          *float64 `json:"max_drawdown"`
	TotalReturn          *float64 `json:"total_return"`
	Volatility           *float64 `json:"volatility"`
	WinRate              *float64 `json:"win_rate"`
	ProfitFactor         *float64 `json:"profit_factor"`
	AvgTrade             *float64 `json:"avg_trade"`
	NumTrades            *int     `json:"num_trades"`
	MaxConsecutiveWins   *int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses *int     `json:"max_consecutive_losses"`
	CAGR                 *float64 `json:"cagr"`
	CalmarRatio          *float64 `json:"calmar_ratio"`
	SortinoRatio         *float64 `json:"sortino_ratio"`
}

// Value returns the named metric, or false when it is unset or unknown
func (m BacktestMetrics) Value(name string) (float64, bool) {
	var p *float64
	switch name {
	case "sharpe_ratio":
		p = m.SharpeRatio
	case "max_drawdown":
		p = m.MaxDrawdown
	case "total_return":
		p = m.TotalReturn
	case "volatility":
		p = m.Volatility
	case "win_rate":
		p = m.WinRate
	case "profit_factor":
		p = m.ProfitFactor
	case "avg_trade":
		p = m.AvgTrade
	case "cagr":
		p = m.CAGR
	case "calmar_ratio":
		p = m.CalmarRatio
	case "sortino_ratio":
		p = m.SortinoRatio
	case "num_trades":
		if m.NumTrades == nil {
			return 0, false
		}
		return float64(*m.NumTrades), true
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SymbolMetrics are the per-symbol performance figures
type SymbolMetrics struct {
	TotalReturn float64  `json:"total_return"`
	WinRate     float64  `json:"win_rate"`
	AvgGain     *float64 `json:"avg_gain"`
	AvgLoss     *float64 `json:"avg_loss"`
	MaxDrawdown *float64 `json:"max_drawdown"`
	Volatility  *float64 `json:"volatility"`
}

// TradeRecord is one round-trip trade
type TradeRecord struct {
	Symbol       string   `json:"symbol"`
	EntryDate    string   `json:"entry_date"`
	ExitDate     *string  `json:"exit_date"`
	EntryPrice   float64  `json:"entry_price"`
	ExitPrice    *float64 `json:"exit_price"`
	PositionSize float64  `json:"position_size"`
	Side         string   `json:"side"`
	PnL          *float64 `json:"pnl"`
}

// BacktestResult is the full outcome of a backtest run
type BacktestResult struct {
	OverallMetrics   BacktestMetrics          `json:"overall_metrics"`
	PerSymbolMetrics map[string]SymbolMetrics `json:"per_symbol_metrics"`
	EquityCurve      []float64                `json:"equity_curve"`
	Trades           []TradeRecord            `json:"trades"`
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }

// String returns a pointer to v
func String(v string) *string { return &v }
