package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// MonteCarloConfig configures monte carlo simulation
type MonteCarloConfig struct {
	Iterations     int
	Seed           int64
	InitialCapital float64
}

// MonteCarloResult summarizes bootstrapped trade sequences
type MonteCarloResult struct {
	Iterations          int                `json:"iterations"`
	MeanReturn          float64            `json:"mean_return"`
	StdReturn           float64            `json:"std_return"`
	ReturnP5            float64            `json:"return_p5"`
	ReturnP50           float64            `json:"return_p50"`
	ReturnP95           float64            `json:"return_p95"`
	MaxDrawdownP95      float64            `json:"max_drawdown_p95"`
	ProbabilityOfLoss   float64            `json:"probability_of_loss"`
	ConfidenceIntervals map[string]float64 `json:"confidence_intervals"`
}

// RunMonteCarlo resamples trade P&L with replacement and measures the spread of outcomes
func RunMonteCarlo(ctx context.Context, pnls []float64, cfg MonteCarloConfig) (MonteCarloResult, error) {
	if cfg.InitialCapital <= 0 {
		return MonteCarloResult{}, fmt.Errorf("initial capital must be positive")
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	if len(pnls) == 0 {
		return MonteCarloResult{Iterations: cfg.Iterations, ConfidenceIntervals: map[string]float64{}}, nil
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))
	returns := make([]float64, cfg.Iterations)
	drawdowns := make([]float64, cfg.Iterations)
	equity := make([]float64, len(pnls)+1)

	for i := 0; i < cfg.Iterations; i++ {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return MonteCarloResult{}, err
			}
		}
		equity[0] = cfg.InitialCapital
		for j := range pnls {
			equity[j+1] = equity[j] + pnls[rng.Intn(len(pnls))]
		}
		returns[i] = (equity[len(pnls)] - cfg.InitialCapital) / cfg.InitialCapital
		drawdowns[i] = calculateMaxDrawdown(equity)
	}

	mean, std := meanStd(returns)
	return MonteCarloResult{
		Iterations:          cfg.Iterations,
		MeanReturn:          mean,
		StdReturn:           std,
		ReturnP5:            percentile(returns, 0.05),
		ReturnP50:           percentile(returns, 0.50),
		ReturnP95:           percentile(returns, 0.95),
		MaxDrawdownP95:      percentile(drawdowns, 0.95),
		ProbabilityOfLoss:   probabilityBelow(returns, 0),
		ConfidenceIntervals: CalculateConfidenceIntervals(returns, []float64{0.9, 0.95, 0.99}),
	}, nil
}

// CalculateConfidenceIntervals computes the width of central intervals of the distribution
func CalculateConfidenceIntervals(distribution []float64, levels []float64) map[string]float64 {
	results := make(map[string]float64)
	for _, level := range levels {
		p := (1.0 - level) / 2.0
		low := percentile(distribution, p)
		high := percentile(distribution, 1.0-p)
		results[formatPercent(level)] = high - low
	}
	return results
}

func meanStd(values []float64) (float64, float64) {
	return average(values), stddev(values)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func probabilityBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v < threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func formatPercent(level float64) string {
	return fmt.Sprintf("%.0f%%", level*100)
}
