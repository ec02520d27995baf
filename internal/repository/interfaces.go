package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/stocktester/internal/models"
)

// UserRepository defines the interface for user account access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// WatchlistRepository defines the interface for watchlist access
type WatchlistRepository interface {
	// Add inserts the item unless (user, symbol) already exists, in which case the
	// stored row is returned with created=false.
	Add(ctx context.Context, item *models.WatchlistItem) (stored *models.WatchlistItem, created bool, err error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistItem, error)
	Remove(ctx context.Context, userID uuid.UUID, symbol string) (bool, error)
}

// StatusUpdate carries the columns written alongside a status transition
type StatusUpdate struct {
	At            time.Time
	Results       json.RawMessage
	Error         *string
	ExecutionTime *float64
}

// BacktestRepository defines the interface for backtest job records
type BacktestRepository interface {
	Create(ctx context.Context, record *models.BacktestRecord) error
	GetByID(ctx context.Context, id string) (*models.BacktestRecord, error)
	ListByUser(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.BacktestRecord, error)
	ListByStatus(ctx context.Context, status models.BacktestStatus, limit int) ([]*models.BacktestRecord, error)
	// Transition moves a record to status to. It fails with models.ErrInvalidTransition
	// when the current status cannot reach to, and models.ErrNotFound when id is unknown.
	Transition(ctx context.Context, id string, to models.BacktestStatus, update StatusUpdate) error
	CountByStatus(ctx context.Context) (map[models.BacktestStatus]int, error)
	FailRunning(ctx context.Context, message string, at time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DataSourceRepository defines the interface for uploaded market data
type DataSourceRepository interface {
	CreateWithBars(ctx context.Context, source *models.CustomDataSource, bars []models.SymbolBar) error
	GetByName(ctx context.Context, name string) (*models.CustomDataSource, error)
	List(ctx context.Context) ([]*models.CustomDataSource, error)
	Delete(ctx context.Context, name string) error
	ListSymbols(ctx context.Context, sourceID int64) ([]string, error)
	GetBars(ctx context.Context, sourceID int64, symbol string, start, end time.Time) ([]models.Bar, error)
}
