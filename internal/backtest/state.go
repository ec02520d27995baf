package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger tracks account equity as trades close
type Ledger struct {
	initial decimal.Decimal
	equity  decimal.Decimal
	peak    decimal.Decimal
	curve   EquityCurve
}

// NewLedger initializes a ledger at the starting capital
func NewLedger(initialCapital float64, start time.Time) *Ledger {
	capital := decimal.NewFromFloat(initialCapital)
	l := &Ledger{
		initial: capital,
		equity:  capital,
		peak:    capital,
	}
	l.record(start, decimal.Zero)
	return l
}

// Apply books closed trades in exit order
func (l *Ledger) Apply(trades []Trade) {
	ordered := append([]Trade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})
	for _, t := range ordered {
		l.equity = l.equity.Add(t.PnL)
		if l.equity.GreaterThan(l.peak) {
			l.peak = l.equity
		}
		l.record(t.ExitTime, t.PnL)
	}
}

// Equity returns the current account value
func (l *Ledger) Equity() float64 {
	return l.equity.InexactFloat64()
}

// NetProfit is the cumulative profit since the start
func (l *Ledger) NetProfit() float64 {
	return l.equity.Sub(l.initial).InexactFloat64()
}

// GetCurrentDrawdown calculates peak-to-trough drawdown
func (l *Ledger) GetCurrentDrawdown() float64 {
	if !l.peak.IsPositive() {
		return 0
	}
	dd := l.peak.Sub(l.equity).Div(l.peak)
	if dd.IsNegative() {
		return 0
	}
	return dd.InexactFloat64()
}

// Curve returns the recorded equity curve
func (l *Ledger) Curve() EquityCurve {
	return l.curve
}

func (l *Ledger) record(t time.Time, pnl decimal.Decimal) {
	l.curve = append(l.curve, EquityPoint{
		Time:     t,
		Value:    l.equity.InexactFloat64(),
		Drawdown: l.GetCurrentDrawdown(),
		PnL:      pnl.InexactFloat64(),
	})
}
