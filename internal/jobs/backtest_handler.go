package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yourusername/stocktester/internal/backtest"
	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
)

// DataLoader loads the bars a backtest request selects
type DataLoader interface {
	Load(ctx context.Context, req models.DataRequest) (map[string][]models.Bar, error)
}

// NewBacktestHandler runs plain backtest records through the engine
func NewBacktestHandler(loader DataLoader, engine *backtest.Engine) Handler {
	return func(ctx context.Context, record *models.BacktestRecord) (*Result, error) {
		req, err := record.DecodeRequest()
		if err != nil {
			return nil, err
		}

		data, err := loader.Load(ctx, req.Data)
		if err != nil {
			return nil, err
		}

		outcome, err := engine.Run(ctx, &req, data)
		if err != nil {
			return nil, err
		}

		results, err := json.Marshal(outcome.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode results: %w", err)
		}
		metrics.RecordTrades(req.Strategy.Name, len(outcome.Trades))

		return &Result{
			Results:  results,
			Strategy: req.Strategy.Name,
			Trades:   len(outcome.Trades),
		}, nil
	}
}
