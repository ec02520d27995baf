package backtest

import (
	"fmt"

	"github.com/yourusername/stocktester/internal/config"
)

// Config holds engine-wide simulation settings
type Config struct {
	PositionSize         float64
	PeriodsPerYear       int
	RiskFreeRate         float64
	MonteCarloIterations int
	MaxSymbols           int
}

// DefaultConfig returns the settings used when no configuration is supplied
func DefaultConfig() Config {
	return Config{
		PositionSize:         100,
		PeriodsPerYear:       252,
		RiskFreeRate:         0,
		MonteCarloIterations: 1000,
		MaxSymbols:           5000,
	}
}

// FromConfig converts app config to engine config
func FromConfig(cfg *config.EngineConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("engine config is required")
	}
	c := Config{
		PositionSize:         cfg.PositionSize,
		PeriodsPerYear:       cfg.PeriodsPerYear,
		RiskFreeRate:         cfg.RiskFreeRate,
		MonteCarloIterations: cfg.MonteCarloIterations,
		MaxSymbols:           cfg.MaxSymbolsPerBacktest,
	}
	return c, c.Validate()
}

// Validate validates engine parameters
func (c Config) Validate() error {
	if c.PositionSize <= 0 {
		return fmt.Errorf("position size must be positive")
	}
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods per year must be positive")
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("risk free rate must be between 0 and 1")
	}
	if c.MonteCarloIterations <= 0 {
		return fmt.Errorf("monte carlo iterations must be positive")
	}
	if c.MaxSymbols <= 0 {
		return fmt.Errorf("max symbols must be positive")
	}
	return nil
}
