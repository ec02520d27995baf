package api

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/service"
)

type mockUsers struct{ mock.Mock }

func (m *mockUsers) Register(ctx context.Context, in service.RegisterInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUsers) Login(ctx context.Context, in service.LoginInput, remoteAddr string) (*service.LoginResponse, error) {
	args := m.Called(ctx, in, remoteAddr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResponse), args.Error(1)
}

func (m *mockUsers) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockWatchlists struct{ mock.Mock }

func (m *mockWatchlists) List(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistItem, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WatchlistItem), args.Error(1)
}

func (m *mockWatchlists) Add(ctx context.Context, userID uuid.UUID, symbol, notes string) (*models.WatchlistItem, bool, error) {
	args := m.Called(ctx, userID, symbol, notes)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.WatchlistItem), args.Bool(1), args.Error(2)
}

func (m *mockWatchlists) Remove(ctx context.Context, userID uuid.UUID, symbol string) error {
	return m.Called(ctx, userID, symbol).Error(0)
}

type mockBacktests struct{ mock.Mock }

func (m *mockBacktests) Submit(ctx context.Context, userID *uuid.UUID, req models.BacktestRequest) (*models.BacktestRecord, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BacktestRecord), args.Error(1)
}

func (m *mockBacktests) SubmitAI(ctx context.Context, userID *uuid.UUID, req models.AIBacktestRequest) (*models.BacktestRecord, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BacktestRecord), args.Error(1)
}

func (m *mockBacktests) Get(ctx context.Context, userID *uuid.UUID, id string) (*models.BacktestRecord, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BacktestRecord), args.Error(1)
}

func (m *mockBacktests) List(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.BacktestRecord, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BacktestRecord), args.Error(1)
}

func (m *mockBacktests) Cancel(ctx context.Context, userID *uuid.UUID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockBacktests) Status() jobs.Status {
	return m.Called().Get(0).(jobs.Status)
}

type mockData struct{ mock.Mock }

func (m *mockData) Sources(ctx context.Context) ([]models.DataSource, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DataSource), args.Error(1)
}

func (m *mockData) Symbols(ctx context.Context, source string) ([]string, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockData) Upload(ctx context.Context, userID *uuid.UUID, sourceName, filename string, r io.Reader) (*models.DataUploadResponse, error) {
	args := m.Called(ctx, userID, sourceName, filename, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DataUploadResponse), args.Error(1)
}
