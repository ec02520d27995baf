package strategy

import "github.com/yourusername/stocktester/internal/models"

// BollingerBands sells above the upper band and buys below the lower band
type BollingerBands struct {
	BaseStrategy
}

// NewBollingerBands creates the strategy with its template
func NewBollingerBands() *BollingerBands {
	return &BollingerBands{BaseStrategy{template: models.StrategyTemplate{
		ID:          "BollingerBands",
		Name:        "Bollinger Bands",
		Description: "Trading based on price movements relative to volatility bands",
		Parameters: map[string]models.StrategyParameterInfo{
			"window":  {Type: models.ParamTypeInteger, Default: 20, Description: "Window size for calculating moving average"},
			"num_std": {Type: models.ParamTypeFloat, Default: 2.0, Description: "Number of standard deviations for bands"},
		},
	}}}
}

func (s *BollingerBands) parse(params Parameters) (int, float64, error) {
	window, err := params.Int("window", 20)
	if err != nil {
		return 0, 0, err
	}
	numStd, err := params.Float("num_std", 2.0)
	if err != nil {
		return 0, 0, err
	}
	if window < 2 {
		return 0, 0, invalid("window must be at least 2")
	}
	if numStd <= 0 {
		return 0, 0, invalid("num_std must be positive")
	}
	return window, numStd, nil
}

// Validate checks the parameters without running the strategy
func (s *BollingerBands) Validate(params Parameters) error {
	_, _, err := s.parse(params)
	return err
}

// Execute computes band-breach signals over closes
func (s *BollingerBands) Execute(closes []float64, params Parameters) ([]float64, []float64, error) {
	window, numStd, err := s.parse(params)
	if err != nil {
		return nil, nil, err
	}

	signals := make([]float64, len(closes))
	for idx := window; idx < len(closes); idx++ {
		ma := windowMean(closes, idx, window)
		band := numStd * windowStd(closes, idx, window, ma)
		price := closes[idx]
		switch {
		case price > ma+band:
			signals[idx] = Short
		case price < ma-band:
			signals[idx] = Long
		}
	}
	return signals, applyPositions(signals), nil
}
