package strategy

import "github.com/yourusername/stocktester/internal/models"

// MeanReversion fades z-score excursions from the rolling mean
type MeanReversion struct {
	BaseStrategy
}

// NewMeanReversion creates the strategy with its template
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{BaseStrategy{template: models.StrategyTemplate{
		ID:          "MeanReversion",
		Name:        "Mean Reversion",
		Description: "Trading based on price deviation from historical means",
		Parameters: map[string]models.StrategyParameterInfo{
			"window":      {Type: models.ParamTypeInteger, Default: 30, Description: "Window size for mean calculation"},
			"z_threshold": {Type: models.ParamTypeFloat, Default: 1.5, Description: "Z-score threshold for signals"},
		},
	}}}
}

func (s *MeanReversion) parse(params Parameters) (int, float64, error) {
	window, err := params.Int("window", 30)
	if err != nil {
		return 0, 0, err
	}
	threshold, err := params.Float("z_threshold", 1.5)
	if err != nil {
		return 0, 0, err
	}
	if window < 5 {
		return 0, 0, invalid("window must be at least 5")
	}
	if threshold <= 0 {
		return 0, 0, invalid("z_threshold must be positive")
	}
	return window, threshold, nil
}

// Validate checks the parameters without running the strategy
func (s *MeanReversion) Validate(params Parameters) error {
	_, _, err := s.parse(params)
	return err
}

// Execute computes z-score signals over closes
func (s *MeanReversion) Execute(closes []float64, params Parameters) ([]float64, []float64, error) {
	window, threshold, err := s.parse(params)
	if err != nil {
		return nil, nil, err
	}

	signals := make([]float64, len(closes))
	for idx := window; idx < len(closes); idx++ {
		mean := windowMean(closes, idx, window)
		std := windowStd(closes, idx, window, mean)
		if std == 0 {
			continue
		}
		z := (closes[idx] - mean) / std
		switch {
		case z > threshold:
			signals[idx] = Short
		case z < -threshold:
			signals[idx] = Long
		}
	}
	return signals, applyPositions(signals), nil
}
