// Package main provides the entry point for the StockTester API server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/stocktester/internal/advisor"
	"github.com/yourusername/stocktester/internal/api"
	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/backtest"
	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/health"
	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/marketdata"
	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
	"github.com/yourusername/stocktester/internal/scheduler"
	"github.com/yourusername/stocktester/internal/service"
	"github.com/yourusername/stocktester/internal/strategy"
	"github.com/yourusername/stocktester/internal/tracing"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const shutdownTimeout = 30 * time.Second

var configFile string

var rootCmd = &cobra.Command{
	Use:           "stocktester",
	Short:         "StockTester backtesting API server",
	Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadForService(ctx, configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
	}).Info("StockTester starting")

	stops := newShutdownSequence(appLog)
	defer stops.run(shutdownTimeout)

	if err := tracing.Initialize(cfg.Tracing, cfg.App.Name, appLog); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	metrics.InitRegistry()

	db, err := database.Initialize(ctx, cfg, appLog)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	appLog.Info("Database connection established")

	repos, err := repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	registry := strategy.DefaultRegistry()
	manager := marketdata.NewManagerFromConfig(cfg, repos.DataSource, appLog)

	engineCfg, err := backtest.FromConfig(&cfg.Engine)
	if err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	engine, err := backtest.NewEngine(engineCfg, registry, appLog)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	hub := api.NewHub(cfg.Server.AllowedOrigins, appLog)
	go hub.Run(ctx)

	pool, err := jobs.NewPool(jobs.ConfigFromEngine(cfg.Engine), repos.Backtest, hub, appLog)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	pool.RegisterHandler(models.JobKindBacktest, jobs.NewBacktestHandler(manager, engine))
	if cfg.Features.AIBacktestEnabled {
		adv := advisor.NewFromConfig(cfg, engine, manager, appLog)
		pool.RegisterHandler(models.JobKindAI, adv.Handle)
	}
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	stops.add("worker pool", pool.Shutdown)

	sched, err := buildScheduler(cfg, repos.Backtest, manager, pool, db, appLog)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	stops.add("scheduler", func(context.Context) error { return sched.Stop() })

	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Port:        cfg.Health.Port,
		Logger:      appLog,
		DB:          db,
		Pool:        pool,
	})
	if err := healthServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	stops.add("health server", func(context.Context) error { return healthServer.Shutdown() })
	if cfg.Health.GRPCPort > 0 {
		grpcHealth := health.NewGRPCServer(healthServer, cfg.Health.GRPCPort)
		if err := grpcHealth.Start(ctx); err != nil {
			return err
		}
		stops.add("gRPC health server", func(context.Context) error {
			grpcHealth.Stop()
			return nil
		})
	}

	if metricsServer := startMetricsServer(cfg.Metrics, appLog); metricsServer != nil {
		stops.add("metrics server", metricsServer.Shutdown)
	}

	authenticator := auth.NewAuthenticator(cfg.Auth)
	validator := service.NewRequestValidator(registry, manager, cfg.Engine.MaxSymbolsPerBacktest)
	apiServer := api.NewServer(cfg, api.Dependencies{
		Users:      service.NewUserService(repos.User, authenticator, validator, cfg.Auth.BcryptCost, appLog),
		Watchlists: service.NewWatchlistService(repos.Watchlist, appLog),
		Backtests:  service.NewBacktestService(pool, repos.Backtest, validator, appLog),
		Data:       service.NewDataService(manager, appLog),
		Strategies: registry,
		Auth:       authenticator,
		Hub:        hub,
	}, appLog)
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	stops.add("API server", apiServer.Shutdown)

	healthServer.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"api_port":    cfg.Server.Port,
		"health_port": cfg.Health.Port,
		"workers":     cfg.Engine.MaxConcurrentJobs,
	}).Info("StockTester is running")

	<-ctx.Done()
	appLog.Info("Shutdown signal received")
	healthServer.SetReady(false)

	stops.run(shutdownTimeout)
	appLog.Info("StockTester shut down successfully")
	return nil
}

type shutdownStep struct {
	name string
	stop func(context.Context) error
}

// shutdownSequence stops started components in reverse start order
type shutdownSequence struct {
	steps []shutdownStep
	log   *logrus.Logger
}

func newShutdownSequence(log *logrus.Logger) *shutdownSequence {
	return &shutdownSequence{log: log}
}

func (s *shutdownSequence) add(name string, stop func(context.Context) error) {
	s.steps = append(s.steps, shutdownStep{name: name, stop: stop})
}

// run stops every registered component once. Later calls are no-ops.
func (s *shutdownSequence) run(timeout time.Duration) {
	if len(s.steps) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.stop(ctx); err != nil {
			s.log.WithError(err).Errorf("Error during %s shutdown", step.name)
		}
	}
	s.steps = nil
}

func buildScheduler(
	cfg *config.Config,
	store scheduler.RetentionStore,
	sweeper scheduler.CacheSweeper,
	pool *jobs.Pool,
	db *database.DB,
	appLog *logrus.Logger,
) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(appLog)
	if err := sched.ScheduleRetention(cfg.Retention.CleanupSchedule, cfg.Retention.ResultDays, store); err != nil {
		return nil, err
	}
	if err := sched.ScheduleCacheSweep(10*time.Minute, sweeper); err != nil {
		return nil, err
	}
	if err := sched.ScheduleMetricsRefresh(time.Minute, pool, db); err != nil {
		return nil, err
	}
	return sched, nil
}

func startMetricsServer(cfg config.MetricsConfig, appLog *logrus.Logger) *http.Server {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLog.WithFields(logrus.Fields{"port": cfg.Port, "path": cfg.Path}).Info("Metrics server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Error("Metrics server error")
		}
	}()
	return srv
}
