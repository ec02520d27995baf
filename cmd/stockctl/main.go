// Package main provides stockctl, the StockTester admin CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/repository"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "stockctl",
	Short:         "StockTester administration",
	Long:          `Runs migrations, retention cleanup, job inspection and data imports against the StockTester database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(migrateCmd(), cleanupCmd(), jobsCmd(), sourcesCmd(), importCmd(), healthCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// env is what the database-backed subcommands share
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *database.DB
	repos  *repository.Repositories
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.LoadForService(ctx, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.SetLevel(logrus.WarnLevel)

	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repos, err := repository.NewRepositories(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	return &env{cfg: cfg, logger: appLog, db: db, repos: repos}, nil
}
