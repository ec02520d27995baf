package strategy

import "github.com/yourusername/stocktester/internal/models"

// MomentumStrategy follows the rate of change over momentum_window bars
type MomentumStrategy struct {
	BaseStrategy
}

// NewMomentumStrategy creates the strategy with its template
func NewMomentumStrategy() *MomentumStrategy {
	return &MomentumStrategy{BaseStrategy{template: models.StrategyTemplate{
		ID:          "MomentumStrategy",
		Name:        "Momentum",
		Description: "Trading based on price momentum indicators",
		Parameters: map[string]models.StrategyParameterInfo{
			"momentum_window": {Type: models.ParamTypeInteger, Default: 14, Description: "Window size for momentum calculation"},
			"threshold":       {Type: models.ParamTypeFloat, Default: 0.05, Description: "Threshold for momentum signals"},
		},
	}}}
}

func (s *MomentumStrategy) parse(params Parameters) (int, float64, error) {
	window, err := params.Int("momentum_window", 14)
	if err != nil {
		return 0, 0, err
	}
	threshold, err := params.Float("threshold", 0.05)
	if err != nil {
		return 0, 0, err
	}
	if window < 2 {
		return 0, 0, invalid("momentum_window must be at least 2")
	}
	if threshold <= 0 {
		return 0, 0, invalid("threshold must be positive")
	}
	return window, threshold, nil
}

// Validate checks the parameters without running the strategy
func (s *MomentumStrategy) Validate(params Parameters) error {
	_, _, err := s.parse(params)
	return err
}

// Execute computes momentum signals over closes
func (s *MomentumStrategy) Execute(closes []float64, params Parameters) ([]float64, []float64, error) {
	window, threshold, err := s.parse(params)
	if err != nil {
		return nil, nil, err
	}

	signals := make([]float64, len(closes))
	for idx := window; idx < len(closes); idx++ {
		past := closes[idx-window]
		if past <= 0 {
			continue
		}
		momentum := (closes[idx] - past) / past
		switch {
		case momentum > threshold:
			signals[idx] = Long
		case momentum < -threshold:
			signals[idx] = Short
		}
	}
	return signals, applyPositions(signals), nil
}
