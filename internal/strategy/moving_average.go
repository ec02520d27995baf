package strategy

import "github.com/yourusername/stocktester/internal/models"

// MovingAverageCrossover goes long when the short SMA exceeds the long SMA
// by more than signal_threshold and short when it falls below by the same margin.
type MovingAverageCrossover struct {
	BaseStrategy
}

// NewMovingAverageCrossover creates the strategy with its template
func NewMovingAverageCrossover() *MovingAverageCrossover {
	return &MovingAverageCrossover{BaseStrategy{template: models.StrategyTemplate{
		ID:          "MovingAverageCrossover",
		Name:        "Moving Average Crossover",
		Description: "Trading based on short and long-term moving average signals",
		Parameters: map[string]models.StrategyParameterInfo{
			"short_window":     {Type: models.ParamTypeInteger, Default: 20, Description: "Short moving average window"},
			"long_window":      {Type: models.ParamTypeInteger, Default: 50, Description: "Long moving average window"},
			"signal_threshold": {Type: models.ParamTypeFloat, Default: 0.01, Description: "Signal threshold to trigger trades"},
		},
	}}}
}

type maParams struct {
	short, long int
	threshold   float64
}

func (s *MovingAverageCrossover) parse(params Parameters) (maParams, error) {
	var p maParams
	var err error
	if p.short, err = params.Int("short_window", 20); err != nil {
		return p, err
	}
	if p.long, err = params.Int("long_window", 50); err != nil {
		return p, err
	}
	if p.threshold, err = params.Float("signal_threshold", 0.01); err != nil {
		return p, err
	}
	if p.short >= p.long {
		return p, invalid("short_window must be less than long_window")
	}
	if p.short < 2 {
		return p, invalid("short_window must be at least 2")
	}
	if p.threshold < 0 {
		return p, invalid("signal_threshold must not be negative")
	}
	return p, nil
}

// Validate checks the parameters without running the strategy
func (s *MovingAverageCrossover) Validate(params Parameters) error {
	_, err := s.parse(params)
	return err
}

// Execute computes crossover signals over closes
func (s *MovingAverageCrossover) Execute(closes []float64, params Parameters) ([]float64, []float64, error) {
	p, err := s.parse(params)
	if err != nil {
		return nil, nil, err
	}

	signals := make([]float64, len(closes))
	for idx := p.long; idx < len(closes); idx++ {
		diff := windowMean(closes, idx, p.short) - windowMean(closes, idx, p.long)
		switch {
		case diff > p.threshold:
			signals[idx] = Long
		case diff < -p.threshold:
			signals[idx] = Short
		}
	}
	return signals, applyPositions(signals), nil
}
