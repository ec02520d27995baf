package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/strategy"
)

// ErrNoData is returned when a requested symbol has no bars
var ErrNoData = errors.New("no market data")

// Outcome is the full product of a run, before output filtering
type Outcome struct {
	Result *models.BacktestResult
	Trades []Trade
	Equity EquityCurve
}

// Engine orchestrates backtesting runs
type Engine struct {
	config   Config
	registry *strategy.Registry
	logger   *logrus.Logger
}

// NewEngine creates a new backtesting engine
func NewEngine(cfg Config, registry *strategy.Registry, logger *logrus.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		config:   cfg,
		registry: registry,
		logger:   logger,
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Registry returns the strategy registry the engine resolves names against
func (e *Engine) Registry() *strategy.Registry {
	return e.registry
}

// Run executes the request's strategy over data, one symbol at a time in request order
func (e *Engine) Run(ctx context.Context, req *models.BacktestRequest, data map[string][]models.Bar) (*Outcome, error) {
	if req == nil {
		return nil, fmt.Errorf("backtest request is required")
	}
	if err := e.registry.ValidateDefinition(req.Strategy); err != nil {
		return nil, err
	}
	strat, err := e.registry.Get(req.Strategy.Name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger := e.logger.WithFields(logrus.Fields{
		"strategy": req.Strategy.Name,
		"symbols":  len(req.Data.Symbols),
	})
	logger.Info("Starting backtest run")

	costs := Costs{Commission: req.Execution.Commission, Slippage: req.Execution.Slippage}
	params := strategy.Parameters(req.Strategy.Parameters)
	var trades []Trade

	for _, symbol := range req.Data.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, ok := data[symbol]
		if !ok || len(bars) == 0 {
			return nil, fmt.Errorf("%w for symbol %s", ErrNoData, symbol)
		}

		_, positions, err := strat.Execute(models.Closes(bars), params)
		if err != nil {
			return nil, fmt.Errorf("strategy %s failed on %s: %w", strat.Name(), symbol, err)
		}
		symbolTrades := GenerateTrades(symbol, bars, positions, e.config.PositionSize, costs)
		logger.WithFields(logrus.Fields{"symbol": symbol, "bars": len(bars), "trades": len(symbolTrades)}).Debug("Processed symbol")
		trades = append(trades, symbolTrades...)
	}

	ledger := NewLedger(req.Execution.InitialCapital, req.Data.StartDate.Time)
	ledger.Apply(trades)

	overall, perSymbol := CalculateMetrics(trades, req.Execution.InitialCapital, req.Output.Metrics, e.config)
	result := &models.BacktestResult{
		OverallMetrics:   overall,
		PerSymbolMetrics: perSymbol,
	}
	curve := ledger.Curve()
	if req.Output.IncludeEquityCurve && len(curve) > 1 {
		result.EquityCurve = curve.Values()
	}
	if req.Output.IncludeTrades {
		result.Trades = make([]models.TradeRecord, 0, len(trades))
		for _, t := range trades {
			result.Trades = append(result.Trades, t.ToRecord(req.Data.Timeframe))
		}
	}

	logger.WithFields(logrus.Fields{
		"trades":   len(trades),
		"equity":   ledger.Equity(),
		"duration": time.Since(start).String(),
	}).Info("Backtest run completed")

	return &Outcome{Result: result, Trades: trades, Equity: curve}, nil
}
