// Package repository implements PostgreSQL data access for StockTester.
package repository

import (
	"fmt"

	"github.com/yourusername/stocktester/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	User       UserRepository
	Watchlist  WatchlistRepository
	Backtest   BacktestRepository
	DataSource DataSourceRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		User:       NewPostgresUserRepository(db),
		Watchlist:  NewPostgresWatchlistRepository(db),
		Backtest:   NewPostgresBacktestRepository(db),
		DataSource: NewPostgresDataSourceRepository(db),
	}, nil
}
