package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/yourusername/stocktester/internal/models"
)

// SyntheticSourceName is the built-in data source
const SyntheticSourceName = models.DefaultDataSource

const maxSyntheticBars = 500000

// DefaultSymbols are the tickers served by the synthetic source
var DefaultSymbols = []string{
	"AAPL", "MSFT", "GOOG", "AMZN", "META",
	"TSLA", "NVDA", "BRK.A", "JPM", "JNJ",
}

// SyntheticProvider generates reproducible random-walk prices. The series for a
// symbol is seeded by the sum of its character codes, so repeated requests for
// the same range and timeframe return identical bars.
type SyntheticProvider struct {
	symbols []string
	start   models.Date
	end     models.Date
}

// NewSyntheticProvider creates the default synthetic source
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{
		symbols: DefaultSymbols,
		start:   models.NewDate(2010, time.January, 1),
		end:     models.NewDate(2023, time.December, 31),
	}
}

// Name returns the source name
func (p *SyntheticProvider) Name() string { return SyntheticSourceName }

// Describe returns the catalogue entry for the synthetic source
func (p *SyntheticProvider) Describe(ctx context.Context) (models.DataSource, error) {
	start, end := p.start, p.end
	return models.DataSource{
		Name:         SyntheticSourceName,
		Description:  "Default stock market data",
		SymbolsCount: len(p.symbols),
		StartDate:    &start,
		EndDate:      &end,
		Timeframes:   []string{string(models.TimeframeDay), string(models.TimeframeHour)},
	}, nil
}

// Symbols returns the built-in tickers
func (p *SyntheticProvider) Symbols(ctx context.Context) ([]string, error) {
	return append([]string{}, p.symbols...), nil
}

// Fetch generates bars for symbol between start and end inclusive. The range
// is clamped to the dates the source advertises.
func (p *SyntheticProvider) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe models.Timeframe) ([]models.Bar, error) {
	start, end = p.clamp(start, end)
	times, err := syntheticTimes(start, end, timeframe)
	if err != nil {
		return nil, err
	}
	return generateBars(symbol, times), nil
}

func (p *SyntheticProvider) clamp(start, end time.Time) (time.Time, time.Time) {
	start, end = start.UTC(), end.UTC()
	if start.Before(p.start.Time) {
		start = p.start.Time
	}
	if last := p.end.AddDate(0, 0, 1).Add(-time.Nanosecond); end.After(last) {
		end = last
	}
	return start, end
}

func syntheticTimes(start, end time.Time, timeframe models.Timeframe) ([]time.Time, error) {
	start = start.UTC()
	end = end.UTC()
	if end.Before(start) {
		return nil, nil
	}

	var step time.Duration
	switch timeframe {
	case models.TimeframeDay, "":
		timeframe = models.TimeframeDay
		step = 24 * time.Hour
	case models.TimeframeHour:
		step = time.Hour
	case models.TimeframeMinute:
		step = time.Minute
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}
	// Unix seconds avoid time.Duration saturating on spans over ~292 years
	if n := (end.Unix()-start.Unix())/int64(step/time.Second) + 1; n > maxSyntheticBars {
		return nil, fmt.Errorf("%w: %d %s bars requested, limit is %d", ErrUnsupportedTimeframe, n, timeframe, maxSyntheticBars)
	}

	var times []time.Time
	if timeframe == models.TimeframeDay {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
				times = append(times, d)
			}
		}
		return times, nil
	}
	for t := start; !t.After(end); t = t.Add(step) {
		times = append(times, t)
	}
	return times, nil
}

func symbolSeed(symbol string) int64 {
	var seed int64
	for _, r := range symbol {
		seed += int64(r)
	}
	return seed
}

func generateBars(symbol string, times []time.Time) []models.Bar {
	n := len(times)
	if n == 0 {
		return nil
	}

	seed := symbolSeed(symbol)
	rng := rand.New(rand.NewSource(seed))
	base := float64(seed%90) + 10

	returns := make([]float64, n)
	for i := range returns {
		returns[i] = 0.0002 + 0.015*rng.NormFloat64()
	}

	closes := make([]float64, n)
	level := base
	for i, r := range returns {
		level *= 1 + r
		closes[i] = level
	}

	volatility := 0.01 + 0.02*rng.Float64()
	highs := make([]float64, n)
	for i := range highs {
		highs[i] = closes[i] * (1 + volatility*rng.Float64())
	}
	lows := make([]float64, n)
	for i := range lows {
		lows[i] = closes[i] * (1 - volatility*rng.Float64())
	}

	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Time:  times[i],
			Open:  lows[i] + rng.Float64()*(highs[i]-lows[i]),
			High:  highs[i],
			Low:   lows[i],
			Close: closes[i],
		}
	}

	baseVolume := 50000 + 950000*rng.Float64()
	for i := range bars {
		bars[i].Volume = math.Round(baseVolume * (1 + math.Abs(returns[i])*10) * (0.5 + rng.Float64()))
	}
	return bars
}
