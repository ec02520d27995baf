package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/yourusername/stocktester/internal/config"
)

// SetupTestDB connects to the database named by STOCKTESTER_TEST_CONFIG and migrates it.
// The test is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	path := os.Getenv("STOCKTESTER_TEST_CONFIG")
	if path == "" {
		t.Skip("Integration test - set STOCKTESTER_TEST_CONFIG to a config with a reachable database")
	}

	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}
	if _, err := db.Migrate(ctx, nil); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { TeardownTestDB(t, db) })
	return db
}

// TeardownTestDB truncates the application tables and closes the pool
func TeardownTestDB(t *testing.T, db *DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.pool.Exec(ctx, `TRUNCATE market_bars, custom_data_sources, backtests, watchlist_items, users CASCADE`); err != nil {
		t.Logf("warning: failed to truncate test tables: %v", err)
	}
	db.Close()
}
