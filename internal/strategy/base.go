package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yourusername/stocktester/internal/models"
)

// Parameters holds raw strategy parameters as decoded from a request
type Parameters map[string]interface{}

// Int reads an integer parameter, falling back to def when absent
func (p Parameters) Int(name string, def int) (int, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, name, err)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParameter, name, raw)
	}
	return int(f), nil
}

// Float reads a float parameter, falling back to def when absent
func (p Parameters) Float(name string, def float64) (float64, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, name, err)
	}
	return f, nil
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// invalid formats a parameter validation failure
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// BaseStrategy provides shared functionality for strategies
type BaseStrategy struct {
	template models.StrategyTemplate
}

// Name returns the template id
func (b *BaseStrategy) Name() string {
	return b.template.ID
}

// Template returns the strategy's parameter catalogue entry
func (b *BaseStrategy) Template() models.StrategyTemplate {
	return b.template
}

// applyPositions derives positions from signals, holding the last nonzero signal
func applyPositions(signals []float64) []float64 {
	positions := make([]float64, len(signals))
	for i := 1; i < len(signals); i++ {
		if signals[i] != Flat {
			positions[i] = signals[i]
		} else {
			positions[i] = positions[i-1]
		}
	}
	return positions
}

// windowMean averages the window ending at idx inclusive
func windowMean(prices []float64, idx, window int) float64 {
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += prices[idx-i]
	}
	return sum / float64(window)
}

// windowStd is the population standard deviation of the window ending at idx
func windowStd(prices []float64, idx, window int, mean float64) float64 {
	variance := 0.0
	for i := 0; i < window; i++ {
		d := prices[idx-i] - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(window))
}
