package backtest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/yourusername/stocktester/internal/models"
)

// profitFactorCap stands in for an infinite profit factor when no trade lost money
const profitFactorCap = 999

// MetricInfo describes a metric in the catalogue
type MetricInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AvailableMetrics is the catalogue served by GET /api/v1/metrics
var AvailableMetrics = map[string]MetricInfo{
	"total_return":  {Name: "Total Return", Description: "Total percentage return of the strategy"},
	"sharpe_ratio":  {Name: "Sharpe Ratio", Description: "Risk-adjusted return (using risk-free rate of 0)"},
	"max_drawdown":  {Name: "Maximum Drawdown", Description: "Maximum peak-to-trough decline in portfolio value"},
	"volatility":    {Name: "Volatility", Description: "Standard deviation of returns (annualized)"},
	"win_rate":      {Name: "Win Rate", Description: "Percentage of trades that were profitable"},
	"profit_factor": {Name: "Profit Factor", Description: "Gross profit divided by gross loss"},
	"avg_trade":     {Name: "Average Trade", Description: "Average profit/loss per trade"},
	"num_trades":    {Name: "Number of Trades", Description: "Total number of trades executed"},
	"cagr":          {Name: "CAGR", Description: "Compound Annual Growth Rate"},
	"calmar_ratio":  {Name: "Calmar Ratio", Description: "CAGR divided by maximum drawdown"},
	"sortino_ratio": {Name: "Sortino Ratio", Description: "Risk-adjusted return using downside deviation"},
}

// IsKnownMetric reports whether name may appear in output.metrics
func IsKnownMetric(name string) bool {
	if _, ok := AvailableMetrics[name]; ok {
		return true
	}
	return name == "max_consecutive_wins" || name == "max_consecutive_losses"
}

// CalculateMetrics computes overall and per-symbol metrics from closed trades.
// The basic trade statistics are always populated; the risk metrics only
// when requested.
func CalculateMetrics(trades []Trade, initialCapital float64, requested []string, cfg Config) (models.BacktestMetrics, map[string]models.SymbolMetrics) {
	want := make(map[string]bool, len(requested))
	for _, m := range requested {
		want[m] = true
	}

	overall := models.BacktestMetrics{
		NumTrades:   models.Int(len(trades)),
		TotalReturn: models.Float64(0),
	}
	perSymbol := make(map[string]models.SymbolMetrics)
	if len(trades) == 0 || initialCapital <= 0 {
		return overall, perSymbol
	}

	ordered := append([]Trade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	pnls := tradePnLs(ordered)
	returns := make([]float64, len(pnls))
	for i, p := range pnls {
		returns[i] = p / initialCapital
	}
	equity := equityFromPnLs(initialCapital, pnls)
	totalReturn := sum(pnls) / initialCapital
	maxDD := calculateMaxDrawdown(equity)

	overall.TotalReturn = models.Float64(totalReturn)
	overall.WinRate = models.Float64(calculateWinRate(pnls))
	overall.ProfitFactor = models.Float64(calculateProfitFactor(pnls))
	overall.AvgTrade = models.Float64(sum(pnls) / float64(len(pnls)))

	if want["sharpe_ratio"] {
		overall.SharpeRatio = models.Float64(calculateSharpeRatio(returns, cfg.RiskFreeRate, cfg.PeriodsPerYear))
	}
	if want["sortino_ratio"] {
		overall.SortinoRatio = models.Float64(calculateSortinoRatio(returns, cfg.RiskFreeRate, cfg.PeriodsPerYear))
	}
	if want["max_drawdown"] {
		overall.MaxDrawdown = models.Float64(maxDD)
	}
	if want["volatility"] {
		overall.Volatility = models.Float64(stddev(returns))
	}
	if want["max_consecutive_wins"] || want["max_consecutive_losses"] {
		wins, losses := maxConsecutive(pnls)
		overall.MaxConsecutiveWins = models.Int(wins)
		overall.MaxConsecutiveLosses = models.Int(losses)
	}

	cagr, cagrOK := calculateCAGR(ordered, totalReturn)
	if want["cagr"] && cagrOK {
		overall.CAGR = models.Float64(cagr)
	}
	if want["calmar_ratio"] && cagrOK && maxDD > 0 {
		overall.CalmarRatio = models.Float64(cagr / maxDD)
	}

	bySymbol := make(map[string][]float64)
	for _, t := range ordered {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t.PnL.InexactFloat64())
	}
	for symbol, symbolPnLs := range bySymbol {
		perSymbol[symbol] = calculateSymbolMetrics(symbolPnLs, initialCapital)
	}

	return overall, perSymbol
}

func calculateSymbolMetrics(pnls []float64, initialCapital float64) models.SymbolMetrics {
	returns := make([]float64, len(pnls))
	var gains, losses []float64
	for i, p := range pnls {
		returns[i] = p / initialCapital
		if p > 0 {
			gains = append(gains, p)
		} else if p < 0 {
			losses = append(losses, p)
		}
	}

	m := models.SymbolMetrics{
		TotalReturn: sum(pnls) / initialCapital,
		WinRate:     calculateWinRate(pnls),
		MaxDrawdown: models.Float64(calculateMaxDrawdown(equityFromPnLs(initialCapital, pnls))),
		Volatility:  models.Float64(stddev(returns)),
	}
	if len(gains) > 0 {
		m.AvgGain = models.Float64(average(gains))
	}
	if len(losses) > 0 {
		m.AvgLoss = models.Float64(average(losses))
	}
	return m
}

func tradePnLs(trades []Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnL.InexactFloat64()
	}
	return out
}

func equityFromPnLs(initial float64, pnls []float64) []float64 {
	equity := make([]float64, 0, len(pnls)+1)
	equity = append(equity, initial)
	current := initial
	for _, p := range pnls {
		current += p
		equity = append(equity, current)
	}
	return equity
}

// calculateSharpeRatio annualizes mean over sample standard deviation
func calculateSharpeRatio(returns []float64, riskFreeRate float64, periods int) float64 {
	if len(returns) < 2 || periods <= 0 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeRate/float64(periods)
	}
	std := sampleStddev(excess)
	if std == 0 {
		return 0
	}
	return average(excess) / std * math.Sqrt(float64(periods))
}

// calculateSortinoRatio annualizes mean over downside deviation
func calculateSortinoRatio(returns []float64, riskFreeRate float64, periods int) float64 {
	if len(returns) == 0 || periods <= 0 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeRate/float64(periods)
	}
	dd := downsideDeviation(excess)
	if dd == 0 {
		return 0
	}
	return average(excess) / dd * math.Sqrt(float64(periods))
}

func calculateMaxDrawdown(equity []float64) float64 {
	maxDD := 0.0
	peak := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - v) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}
	return maxDD
}

func calculateProfitFactor(pnls []float64) float64 {
	grossProfit := 0.0
	grossLoss := 0.0
	for _, p := range pnls {
		if p > 0 {
			grossProfit += p
		} else {
			grossLoss += math.Abs(p)
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return profitFactorCap
		}
		return 0
	}
	return grossProfit / grossLoss
}

func calculateWinRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls))
}

// calculateCAGR compounds the total return over the span from first entry to last exit
func calculateCAGR(trades []Trade, totalReturn float64) (float64, bool) {
	if len(trades) == 0 {
		return 0, false
	}
	first := trades[0].EntryTime
	last := trades[0].ExitTime
	for _, t := range trades[1:] {
		if t.EntryTime.Before(first) {
			first = t.EntryTime
		}
		if t.ExitTime.After(last) {
			last = t.ExitTime
		}
	}
	years := last.Sub(first).Hours() / 24 / 365.25
	growth := 1 + totalReturn
	if years <= 0 || growth <= 0 {
		return 0, false
	}
	return math.Pow(growth, 1/years) - 1, true
}

func maxConsecutive(pnls []float64) (int, int) {
	maxWins, maxLosses := 0, 0
	wins, losses := 0, 0
	for _, p := range pnls {
		if p > 0 {
			wins++
			losses = 0
		} else {
			losses++
			wins = 0
		}
		if wins > maxWins {
			maxWins = wins
		}
		if losses > maxLosses {
			maxLosses = losses
		}
	}
	return maxWins, maxLosses
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// stddev is the population standard deviation
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

// sampleStddev uses Bessel's correction
func sampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// downsideDeviation is sqrt(mean(min(r, 0)^2))
func downsideDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	acc := 0.0
	for _, v := range values {
		if v < 0 {
			acc += v * v
		}
	}
	return math.Sqrt(acc / float64(len(values)))
}

// HashParameters creates a stable hash for parameter maps
func HashParameters(params map[string]interface{}) string {
	data, _ := json.Marshal(params)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}
