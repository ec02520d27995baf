// Package main provides the entry point for the local backtesting CLI tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/backtest"
	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/marketdata"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/strategy"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to config file")
		requestPath = flag.String("request", "", "Path to a backtest request JSON file")
		source      = flag.String("source", "", "Override the request data source")
		startDate   = flag.String("start-date", "", "Override start date (YYYY-MM-DD)")
		endDate     = flag.String("end-date", "", "Override end date (YYYY-MM-DD)")
		equityOut   = flag.String("equity-out", "", "Write the equity curve to this .csv or .json file")
		format      = flag.String("format", "text", "Metrics output: text or json")
	)
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)

	if *requestPath == "" {
		log.Fatal("-request is required")
	}
	req, err := loadRequest(*requestPath, *source, *startDate, *endDate)
	if err != nil {
		log.WithError(err).Fatal("Invalid backtest request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := run(ctx, cfg, req, log)
	if err != nil {
		log.WithError(err).Fatal("Backtest failed")
	}

	if err := printResult(os.Stdout, *format, req.Strategy.Name, outcome.Result); err != nil {
		log.WithError(err).Fatal("Failed to print metrics")
	}

	if *equityOut != "" {
		if err := backtest.WriteEquityFile(*equityOut, outcome.Equity); err != nil {
			log.WithError(err).Fatal("Failed to write equity curve")
		}
		log.WithField("path", *equityOut).Info("Equity curve written")
	}
}

func loadRequest(path, source, start, end string) (*models.BacktestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	req, err := models.DecodeBacktestRequest(data)
	if err != nil {
		return nil, err
	}
	if source != "" {
		req.Data.DataSource = source
	}
	if start != "" {
		d, err := models.ParseDate(start)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %w", err)
		}
		req.Data.StartDate = d
	}
	if end != "" {
		d, err := models.ParseDate(end)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}
		req.Data.EndDate = d
	}
	return &req, nil
}

func run(ctx context.Context, cfg *config.Config, req *models.BacktestRequest, log *logrus.Logger) (*backtest.Outcome, error) {
	registry := strategy.DefaultRegistry()
	engineCfg, err := backtest.FromConfig(&cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	engine, err := backtest.NewEngine(engineCfg, registry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	// uploaded sources need the database and are served by the API instead
	manager := marketdata.NewManagerFromConfig(cfg, nil, log)
	data, err := manager.Load(ctx, req.Data)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"strategy": req.Strategy.Name,
		"symbols":  len(req.Data.Symbols),
		"source":   req.Data.DataSource,
	}).Info("Starting backtest")

	started := time.Now()
	outcome, err := engine.Run(ctx, req, data)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"duration": time.Since(started).String(),
		"trades":   len(outcome.Trades),
	}).Info("Backtest completed")
	return outcome, nil
}

func printResult(w io.Writer, format, strategyName string, result *models.BacktestResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result.OverallMetrics)
	case "text":
		_, err := io.WriteString(w, backtest.GenerateConsoleReport(strategyName, result))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
