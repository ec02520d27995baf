package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/models"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "username",
			err:  &pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_username_key"},
			want: models.ErrUsernameTaken,
		},
		{
			name: "email",
			err:  &pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"},
			want: models.ErrEmailTaken,
		},
		{
			name: "other unique",
			err:  &pgconn.PgError{Code: uniqueViolation, ConstraintName: "custom_data_sources_name_key"},
			want: models.ErrDuplicateKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError("insert", tt.err), tt.want)
		})
	}

	plain := translateError("insert", errors.New("connection reset"))
	assert.NotErrorIs(t, plain, models.ErrDuplicateKey)
	assert.Contains(t, plain.Error(), "failed to insert")
}

func setupRepos(t *testing.T) *Repositories {
	db := database.SetupTestDB(t)
	repos, err := NewRepositories(db)
	require.NoError(t, err)
	return repos
}

func createUser(t *testing.T, repos *Repositories, name string) *models.User {
	user := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(t, repos.User.Create(context.Background(), user))
	return user
}

func TestNewRepositoriesRequiresDB(t *testing.T) {
	_, err := NewRepositories(nil)
	assert.Error(t, err)
}

func TestUserRepositoryRoundTrip(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	user := createUser(t, repos, "alice")
	got, err := repos.User.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = repos.User.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	err = repos.User.Create(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, models.ErrUsernameTaken)

	_, err = repos.User.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWatchlistRepositoryIdempotence(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	user := createUser(t, repos, "bob")

	first, created, err := repos.Watchlist.Add(ctx, &models.WatchlistItem{UserID: user.ID, Symbol: "AAPL"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repos.Watchlist.Add(ctx, &models.WatchlistItem{UserID: user.ID, Symbol: "AAPL", Notes: "again"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	items, err := repos.Watchlist.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	removed, err := repos.Watchlist.Remove(ctx, user.ID, "AAPL")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repos.Watchlist.Remove(ctx, user.ID, "AAPL")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBacktestRepositoryTransitions(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	record := &models.BacktestRecord{Request: json.RawMessage(`{"strategy":{"name":"MomentumStrategy"}}`)}
	require.NoError(t, repos.Backtest.Create(ctx, record))
	assert.Equal(t, models.StatusPending, record.Status)

	require.NoError(t, repos.Backtest.Transition(ctx, record.ID, models.StatusRunning, StatusUpdate{}))

	err := repos.Backtest.Transition(ctx, record.ID, models.StatusCancelled, StatusUpdate{})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	execTime := 1.5
	require.NoError(t, repos.Backtest.Transition(ctx, record.ID, models.StatusCompleted, StatusUpdate{
		Results:       json.RawMessage(`{"equity_curve":[100000]}`),
		ExecutionTime: &execTime,
	}))

	err = repos.Backtest.Transition(ctx, record.ID, models.StatusFailed, StatusUpdate{})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := repos.Backtest.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 1.5, got.ExecutionTime)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.JSONEq(t, `{"equity_curve":[100000]}`, string(got.Results))

	err = repos.Backtest.Transition(ctx, "bt-missing", models.StatusRunning, StatusUpdate{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBacktestRepositoryMaintenance(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	running := &models.BacktestRecord{Request: json.RawMessage(`{}`)}
	require.NoError(t, repos.Backtest.Create(ctx, running))
	require.NoError(t, repos.Backtest.Transition(ctx, running.ID, models.StatusRunning, StatusUpdate{}))

	n, err := repos.Backtest.FailRunning(ctx, "interrupted by restart", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := repos.Backtest.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusFailed])

	deleted, err := repos.Backtest.DeleteFinishedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDataSourceRepositoryBars(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.SymbolBar{
		{Symbol: "AAPL", Bar: models.Bar{Time: day, Open: 1, High: 2, Low: 1, Close: 2, Volume: 10}},
		{Symbol: "AAPL", Bar: models.Bar{Time: day.AddDate(0, 0, 1), Open: 2, High: 3, Low: 2, Close: 3, Volume: 10}},
		{Symbol: "MSFT", Bar: models.Bar{Time: day, Open: 5, High: 5, Low: 5, Close: 5, Volume: 10}},
	}
	source := &models.CustomDataSource{Name: "custom_prices", SymbolsCount: 2, StartDate: day, EndDate: day.AddDate(0, 0, 1)}
	require.NoError(t, repos.DataSource.CreateWithBars(ctx, source, bars))

	err := repos.DataSource.CreateWithBars(ctx, &models.CustomDataSource{Name: "custom_prices", StartDate: day, EndDate: day}, nil)
	assert.ErrorIs(t, err, models.ErrDuplicateKey)

	symbols, err := repos.DataSource.ListSymbols(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	got, err := repos.DataSource.GetBars(ctx, source.ID, "AAPL", day, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[1].Close)

	require.NoError(t, repos.DataSource.Delete(ctx, "custom_prices"))
	assert.ErrorIs(t, repos.DataSource.Delete(ctx, "custom_prices"), models.ErrNotFound)
}
