package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// MockUserRepository mocks the user repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockWatchlistRepository mocks the watchlist repository
type MockWatchlistRepository struct {
	mock.Mock
}

func (m *MockWatchlistRepository) Add(ctx context.Context, item *models.WatchlistItem) (*models.WatchlistItem, bool, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.WatchlistItem), args.Bool(1), args.Error(2)
}

func (m *MockWatchlistRepository) List(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistItem, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WatchlistItem), args.Error(1)
}

func (m *MockWatchlistRepository) Remove(ctx context.Context, userID uuid.UUID, symbol string) (bool, error) {
	args := m.Called(ctx, userID, symbol)
	return args.Bool(0), args.Error(1)
}

// MockBacktestRepository mocks the backtest repository
type MockBacktestRepository struct {
	mock.Mock
}

func (m *MockBacktestRepository) Create(ctx context.Context, record *models.BacktestRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockBacktestRepository) GetByID(ctx context.Context, id string) (*models.BacktestRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BacktestRecord), args.Error(1)
}

func (m *MockBacktestRepository) ListByUser(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.BacktestRecord, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BacktestRecord), args.Error(1)
}

func (m *MockBacktestRepository) ListByStatus(ctx context.Context, status models.BacktestStatus, limit int) ([]*models.BacktestRecord, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BacktestRecord), args.Error(1)
}

func (m *MockBacktestRepository) Transition(ctx context.Context, id string, to models.BacktestStatus, update repository.StatusUpdate) error {
	return m.Called(ctx, id, to, update).Error(0)
}

func (m *MockBacktestRepository) CountByStatus(ctx context.Context) (map[models.BacktestStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.BacktestStatus]int), args.Error(1)
}

func (m *MockBacktestRepository) FailRunning(ctx context.Context, message string, at time.Time) (int64, error) {
	args := m.Called(ctx, message, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBacktestRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockJobQueue mocks the worker pool
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Submit(ctx context.Context, record *models.BacktestRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockJobQueue) Cancel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobQueue) Status() jobs.Status {
	return m.Called().Get(0).(jobs.Status)
}

// MockSourceChecker mocks data source lookup
type MockSourceChecker struct {
	mock.Mock
}

func (m *MockSourceChecker) LookupSource(ctx context.Context, name string) (*models.DataSource, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DataSource), args.Error(1)
}

// MockDataCatalog mocks the market data manager
type MockDataCatalog struct {
	mock.Mock
}

func (m *MockDataCatalog) ListSources(ctx context.Context) ([]models.DataSource, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DataSource), args.Error(1)
}

func (m *MockDataCatalog) ListSymbols(ctx context.Context, source string) ([]string, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataCatalog) Import(ctx context.Context, sourceName, filename string, r io.Reader) (*models.DataUploadResponse, error) {
	args := m.Called(ctx, sourceName, filename, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DataUploadResponse), args.Error(1)
}
