package backtest

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/stocktester/internal/models"
)

// Trade is a closed round trip derived from a position series
type Trade struct {
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	Direction  float64
	PnL        decimal.Decimal
}

// Side names the trade direction
func (t Trade) Side() string {
	if t.Direction < 0 {
		return "short"
	}
	return "long"
}

// Costs are proportional execution costs applied to both legs of a trade
type Costs struct {
	Commission float64
	Slippage   float64
}

// GenerateTrades walks a position series and emits a trade each time the
// position is closed or reversed. An open position is closed on the last bar.
func GenerateTrades(symbol string, bars []models.Bar, positions []float64, size float64, costs Costs) []Trade {
	var trades []Trade
	if len(bars) < 2 || len(positions) != len(bars) {
		return trades
	}

	last := len(bars) - 1
	inPosition := false
	entryIdx := 0

	closeAt := func(i int) {
		trades = append(trades, newTrade(symbol, bars[entryIdx], bars[i], positions[entryIdx], size, costs))
		inPosition = false
	}

	for i := 1; i <= last; i++ {
		pos := positions[i]
		if inPosition && (pos != positions[entryIdx] || i == last) {
			closeAt(i)
		}
		if !inPosition && pos != 0 && i < last {
			inPosition = true
			entryIdx = i
		}
	}
	return trades
}

func newTrade(symbol string, entry, exit models.Bar, direction, size float64, costs Costs) Trade {
	entryPrice := decimal.NewFromFloat(entry.Close)
	exitPrice := decimal.NewFromFloat(exit.Close)
	qty := decimal.NewFromFloat(size)

	pnl := exitPrice.Sub(entryPrice).Mul(qty)
	if direction < 0 {
		pnl = pnl.Neg()
	}

	rate := decimal.NewFromFloat(costs.Commission).Add(decimal.NewFromFloat(costs.Slippage))
	if rate.IsPositive() {
		notional := entryPrice.Add(exitPrice).Mul(qty)
		pnl = pnl.Sub(notional.Mul(rate))
	}

	return Trade{
		Symbol:     symbol,
		EntryTime:  entry.Time,
		ExitTime:   exit.Time,
		EntryPrice: entry.Close,
		ExitPrice:  exit.Close,
		Size:       size,
		Direction:  direction,
		PnL:        pnl,
	}
}

// ToRecord converts a trade into its API shape
func (t Trade) ToRecord(timeframe models.Timeframe) models.TradeRecord {
	exitDate := formatBarTime(t.ExitTime, timeframe)
	exitPrice := t.ExitPrice
	pnl := t.PnL.InexactFloat64()
	return models.TradeRecord{
		Symbol:       t.Symbol,
		EntryDate:    formatBarTime(t.EntryTime, timeframe),
		ExitDate:     &exitDate,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    &exitPrice,
		PositionSize: t.Size,
		Side:         t.Side(),
		PnL:          &pnl,
	}
}

func formatBarTime(t time.Time, timeframe models.Timeframe) string {
	if timeframe == models.TimeframeDay || timeframe == "" {
		return t.UTC().Format(models.DateLayout)
	}
	return t.UTC().Format(time.RFC3339)
}
