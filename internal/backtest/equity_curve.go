package backtest

import "time"

// EquityPoint represents a point in the equity curve
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
	PnL      float64   `json:"pnl"`
}

// EquityCurve represents a time-series of equity points
type EquityCurve []EquityPoint

// Values returns the equity values in order
func (e EquityCurve) Values() []float64 {
	out := make([]float64, len(e))
	for i, p := range e {
		out[i] = p.Value
	}
	return out
}
