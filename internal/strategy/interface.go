// Package strategy implements the signal-generating trading rules that backtests execute.
package strategy

import (
	"errors"

	"github.com/yourusername/stocktester/internal/models"
)

var (
	// ErrUnknownStrategy is returned for a template id the registry does not hold
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrInvalidParameter is returned when a parameter fails validation
	ErrInvalidParameter = errors.New("invalid strategy parameter")
	// ErrCustomCodeUnsupported is returned when a request carries custom_code
	ErrCustomCodeUnsupported = errors.New("custom strategy code is not supported")
)

// Strategy defines the interface for backtesting strategies.
//
// Execute receives a close price series and returns one signal and one
// position per bar, each in {-1, 0, 1}. A nonzero signal sets the position;
// otherwise the previous position carries over.
type Strategy interface {
	Name() string
	Template() models.StrategyTemplate
	Validate(params Parameters) error
	Execute(closes []float64, params Parameters) (signals, positions []float64, err error)
}

// Signal values
const (
	Short = -1.0
	Flat  = 0.0
	Long  = 1.0
)
