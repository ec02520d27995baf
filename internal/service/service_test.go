package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/strategy"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newUserService(repo *MockUserRepository) *UserService {
	authenticator := auth.NewAuthenticator(config.AuthConfig{
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		TokenTTLMinutes: 60,
	})
	return NewUserService(repo, authenticator, NewRequestValidator(strategy.DefaultRegistry(), nil, 0), 4, quietLogger())
}

func validBacktest() models.BacktestRequest {
	req := models.NewBacktestRequest()
	req.Strategy.Name = "MovingAverageCrossover"
	req.Data.Symbols = []string{"aapl", " msft "}
	req.Data.StartDate = models.NewDate(2020, time.January, 1)
	req.Data.EndDate = models.NewDate(2021, time.January, 1)
	return req
}

func TestRegister(t *testing.T) {
	repo := new(MockUserRepository)
	svc := newUserService(repo)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Username == "alice_1" && u.Email == "alice@example.com" && u.PasswordHash != "secret123"
	})).Return(nil).Once()

	user, err := svc.Register(context.Background(), RegisterInput{
		Username: " alice_1 ",
		Email:    "Alice@Example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NoError(t, auth.CheckPassword(user.PasswordHash, "secret123"))
	repo.AssertExpectations(t)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		input    RegisterInput
		problems int
	}{
		{"short username", RegisterInput{Username: "ab", Email: "a@b.co", Password: "longenough"}, 1},
		{"bad characters", RegisterInput{Username: "bad-name", Email: "a@b.co", Password: "longenough"}, 1},
		{"bad email", RegisterInput{Username: "alice", Email: "nope", Password: "longenough"}, 1},
		{"short password", RegisterInput{Username: "alice", Email: "a@b.co", Password: "short"}, 1},
		{"everything missing", RegisterInput{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newUserService(new(MockUserRepository))
			_, err := svc.Register(context.Background(), tt.input)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Problems, tt.problems)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	repo := new(MockUserRepository)
	svc := newUserService(repo)
	repo.On("Create", mock.Anything, mock.Anything).Return(models.ErrEmailTaken)

	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@b.co", Password: "longenough"})
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("secret123", 4)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: hash}

	repo := new(MockUserRepository)
	repo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)
	repo.On("GetByUsername", mock.Anything, "bob").Return(nil, models.ErrNotFound)
	svc := newUserService(repo)

	resp, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret123"}, "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
	assert.Equal(t, user, resp.User)

	_, err = svc.Login(context.Background(), LoginInput{Username: "alice", Password: "wrong-password"}, "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), LoginInput{Username: "bob", Password: "secret123"}, "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestNormalizeWatchSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" aapl ", "AAPL", true},
		{"brk.a", "BRK.A", true},
		{"BF-B", "BF-B", true},
		{"", "", false},
		{"A B", "", false},
		{strings.Repeat("X", 16), "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeWatchSymbol(tt.in)
		if tt.ok {
			assert.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr, tt.in)
		}
	}
}

func TestWatchlistAddIsIdempotent(t *testing.T) {
	userID := uuid.New()
	existing := &models.WatchlistItem{ID: uuid.New(), UserID: userID, Symbol: "AAPL"}

	repo := new(MockWatchlistRepository)
	repo.On("Add", mock.Anything, mock.MatchedBy(func(i *models.WatchlistItem) bool {
		return i.Symbol == "AAPL" && i.UserID == userID
	})).Return(existing, false, nil)
	svc := NewWatchlistService(repo, quietLogger())

	item, created, err := svc.Add(context.Background(), userID, "aapl", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing, item)

	_, _, err = svc.Add(context.Background(), userID, "not a symbol", "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	repo.AssertNumberOfCalls(t, "Add", 1)
}

func TestWatchlistRemoveAndList(t *testing.T) {
	userID := uuid.New()
	repo := new(MockWatchlistRepository)
	repo.On("Remove", mock.Anything, userID, "MSFT").Return(false, nil)
	repo.On("List", mock.Anything, userID).Return(nil, nil)
	svc := NewWatchlistService(repo, quietLogger())

	assert.NoError(t, svc.Remove(context.Background(), userID, "msft"))

	items, err := svc.List(context.Background(), userID)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func newBacktestService(queue *MockJobQueue, repo *MockBacktestRepository, sources *MockSourceChecker) *BacktestService {
	var checker SourceChecker
	if sources != nil {
		checker = sources
	}
	v := NewRequestValidator(strategy.DefaultRegistry(), checker, 5)
	return NewBacktestService(queue, repo, v, quietLogger())
}

func TestSubmitBacktest(t *testing.T) {
	queue := new(MockJobQueue)
	sources := new(MockSourceChecker)
	sources.On("LookupSource", mock.Anything, "default").Return(defaultSource(), nil)
	queue.On("Submit", mock.Anything, mock.MatchedBy(func(r *models.BacktestRecord) bool {
		return r.Kind == models.JobKindBacktest && strings.HasPrefix(r.ID, "bt-")
	})).Return(nil)
	svc := newBacktestService(queue, new(MockBacktestRepository), sources)

	userID := uuid.New()
	record, err := svc.Submit(context.Background(), &userID, validBacktest())
	require.NoError(t, err)
	assert.Equal(t, &userID, record.UserID)

	stored, err := models.DecodeBacktestRequest(record.Request)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, stored.Data.Symbols)
	queue.AssertExpectations(t)
}

func TestSubmitBacktestCollectsProblems(t *testing.T) {
	queue := new(MockJobQueue)
	sources := new(MockSourceChecker)
	sources.On("LookupSource", mock.Anything, "nowhere").Return(nil, nil)
	svc := newBacktestService(queue, new(MockBacktestRepository), sources)

	req := validBacktest()
	req.Strategy.Name = "Unknown"
	req.Data.Symbols = []string{"A", "B", "C", "D", "E", "F"}
	req.Data.EndDate = req.Data.StartDate
	req.Data.DataSource = "nowhere"
	req.Output.Metrics = []string{"sharpe_ratio", "luck"}
	req.Priority = 11

	_, err := svc.Submit(context.Background(), nil, req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	joined := strings.Join(verr.Problems, "\n")
	assert.Contains(t, joined, "priority")
	assert.Contains(t, joined, "end_date must be after")
	assert.Contains(t, joined, "limit is 5")
	assert.Contains(t, joined, "unknown data source 'nowhere'")
	assert.Contains(t, joined, "unknown strategy")
	assert.Contains(t, joined, "unknown metric 'luck'")
	queue.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func defaultSource() *models.DataSource {
	return &models.DataSource{Name: "default", Timeframes: []string{"1d", "1h"}}
}

func TestSubmitRejectsUnservedTimeframe(t *testing.T) {
	sources := new(MockSourceChecker)
	sources.On("LookupSource", mock.Anything, "default").Return(defaultSource(), nil)
	queue := new(MockJobQueue)
	svc := newBacktestService(queue, new(MockBacktestRepository), sources)

	for _, tf := range []models.Timeframe{models.TimeframeSecond, models.TimeframeTick, models.TimeframeMinute} {
		req := validBacktest()
		req.Data.Timeframe = tf
		_, err := svc.Submit(context.Background(), nil, req)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, string(tf))
		assert.Contains(t, strings.Join(verr.Problems, "\n"), "does not serve '"+string(tf)+"' bars")
	}
	queue.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSubmitRejectsCustomCodeAndBadParams(t *testing.T) {
	sources := new(MockSourceChecker)
	sources.On("LookupSource", mock.Anything, mock.Anything).Return(defaultSource(), nil)
	svc := newBacktestService(new(MockJobQueue), new(MockBacktestRepository), sources)

	req := validBacktest()
	code := "print('hi')"
	req.Strategy.CustomCode = &code
	_, err := svc.Submit(context.Background(), nil, req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	req = validBacktest()
	req.Strategy.Parameters = map[string]interface{}{"short_window": 60, "long_window": 50}
	_, err = svc.Submit(context.Background(), nil, req)
	require.ErrorAs(t, err, &verr)
}

func TestSubmitQueueFull(t *testing.T) {
	queue := new(MockJobQueue)
	queue.On("Submit", mock.Anything, mock.Anything).Return(jobs.ErrQueueFull)
	svc := newBacktestService(queue, new(MockBacktestRepository), nil)

	record, err := svc.Submit(context.Background(), nil, validBacktest())
	assert.ErrorIs(t, err, jobs.ErrQueueFull)
	assert.NotNil(t, record)
}

func TestSubmitAI(t *testing.T) {
	queue := new(MockJobQueue)
	queue.On("Submit", mock.Anything, mock.MatchedBy(func(r *models.BacktestRecord) bool {
		return r.Kind == models.JobKindAI
	})).Return(nil)
	svc := newBacktestService(queue, new(MockBacktestRepository), nil)

	req := models.AIBacktestRequest{
		Data: models.DataRequest{
			Symbols:    []string{"AAPL"},
			StartDate:  models.NewDate(2020, time.January, 1),
			EndDate:    models.NewDate(2021, time.January, 1),
			Timeframe:  models.TimeframeDay,
			DataSource: models.DefaultDataSource,
		},
		Execution:     models.DefaultExecutionParams(),
		Objective:     models.ObjectiveSortino,
		MaxCandidates: 10,
	}
	_, err := svc.SubmitAI(context.Background(), nil, req)
	require.NoError(t, err)

	req.Objective = "luck"
	req.Strategies = []string{"Nope"}
	_, err = svc.SubmitAI(context.Background(), nil, req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
}

func TestGetHidesOtherUsersJobs(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	repo := new(MockBacktestRepository)
	repo.On("GetByID", mock.Anything, "bt-00000001").Return(&models.BacktestRecord{ID: "bt-00000001", UserID: &owner}, nil)
	repo.On("GetByID", mock.Anything, "bt-missing").Return(nil, models.ErrNotFound)
	svc := newBacktestService(new(MockJobQueue), repo, nil)

	_, err := svc.Get(context.Background(), &owner, "bt-00000001")
	assert.NoError(t, err)
	_, err = svc.Get(context.Background(), nil, "bt-00000001")
	assert.NoError(t, err)
	_, err = svc.Get(context.Background(), &other, "bt-00000001")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.Get(context.Background(), &owner, "bt-missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestKeyOwnedJobsHiddenFromUsers(t *testing.T) {
	user := uuid.New()
	repo := new(MockBacktestRepository)
	repo.On("GetByID", mock.Anything, "bt-key00001").Return(&models.BacktestRecord{ID: "bt-key00001", Status: models.StatusPending}, nil)
	queue := new(MockJobQueue)
	queue.On("Cancel", mock.Anything, "bt-key00001").Return(nil).Once()
	svc := newBacktestService(queue, repo, nil)

	_, err := svc.Get(context.Background(), &user, "bt-key00001")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, svc.Cancel(context.Background(), &user, "bt-key00001"), models.ErrNotFound)
	queue.AssertNotCalled(t, "Cancel", mock.Anything, "bt-key00001")

	_, err = svc.Get(context.Background(), nil, "bt-key00001")
	assert.NoError(t, err)
	assert.NoError(t, svc.Cancel(context.Background(), nil, "bt-key00001"))
	queue.AssertExpectations(t)
}

func TestCancel(t *testing.T) {
	repo := new(MockBacktestRepository)
	repo.On("GetByID", mock.Anything, mock.Anything).Return(&models.BacktestRecord{ID: "bt-1"}, nil)
	queue := new(MockJobQueue)
	queue.On("Cancel", mock.Anything, "bt-1").Return(nil).Once()
	queue.On("Cancel", mock.Anything, "bt-2").Return(jobs.ErrNotCancellable).Once()
	svc := newBacktestService(queue, repo, nil)

	assert.NoError(t, svc.Cancel(context.Background(), nil, "bt-1"))
	assert.ErrorIs(t, svc.Cancel(context.Background(), nil, "bt-2"), jobs.ErrNotCancellable)
}

func TestListClampsLimit(t *testing.T) {
	repo := new(MockBacktestRepository)
	repo.On("ListByUser", mock.Anything, (*uuid.UUID)(nil), MaxListLimit).Return(nil, nil).Once()
	repo.On("ListByUser", mock.Anything, (*uuid.UUID)(nil), DefaultListLimit).Return([]*models.BacktestRecord{{ID: "bt-1"}}, nil).Once()
	svc := newBacktestService(new(MockJobQueue), repo, nil)

	records, err := svc.List(context.Background(), nil, 500)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)

	records, err = svc.List(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	repo.AssertExpectations(t)
}

func TestDataServiceUpload(t *testing.T) {
	catalog := new(MockDataCatalog)
	body := strings.NewReader("date,symbol,open,high,low,close,volume\n")
	catalog.On("Import", mock.Anything, "mine", "prices.csv", body).
		Return(&models.DataUploadResponse{SourceName: "mine", Rows: 1, Symbols: []string{"AAPL"}}, nil)
	catalog.On("Import", mock.Anything, "", "prices.txt", mock.Anything).
		Return(nil, errors.New("only CSV files are supported"))
	svc := NewDataService(catalog, quietLogger())

	resp, err := svc.Upload(context.Background(), nil, "mine", "prices.csv", body)
	require.NoError(t, err)
	assert.Equal(t, "mine", resp.SourceName)

	_, err = svc.Upload(context.Background(), nil, "", "prices.txt", strings.NewReader(""))
	assert.Error(t, err)
}
