package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/marketdata"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/service"
	"github.com/yourusername/stocktester/internal/strategy"
)

const testAPIKey = "service-key-0001"

type fixture struct {
	srv        *Server
	hub        *Hub
	users      *mockUsers
	watchlists *mockWatchlists
	backtests  *mockBacktests
	data       *mockData
	userID     uuid.UUID
	token      string
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{
		App:    config.AppConfig{Name: "stocktester", Environment: "development", LogLevel: "error"},
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}, MaxUploadMB: 1},
		Auth: config.AuthConfig{
			JWTSecret:       "0123456789abcdef0123456789abcdef",
			TokenTTLMinutes: 60,
			APIKeys:         []string{testAPIKey},
		},
		Features: config.FeaturesConfig{AIBacktestEnabled: true, DataUploadEnabled: true, WebsocketEnabled: true},
	}
	for _, m := range mutate {
		m(cfg)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	authn := auth.NewAuthenticator(cfg.Auth)

	f := &fixture{
		users:      new(mockUsers),
		watchlists: new(mockWatchlists),
		backtests:  new(mockBacktests),
		data:       new(mockData),
		userID:     uuid.New(),
	}
	f.hub = NewHub(cfg.Server.AllowedOrigins, logger)
	f.srv = NewServer(cfg, Dependencies{
		Users:      f.users,
		Watchlists: f.watchlists,
		Backtests:  f.backtests,
		Data:       f.data,
		Strategies: strategy.DefaultRegistry(),
		Auth:       authn,
		Hub:        f.hub,
	}, logger)

	token, _, err := authn.IssueToken(&models.User{ID: f.userID, Username: "alice"})
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *fixture) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + f.token}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	return resp
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), http.StatusNotFound},
		{&service.ValidationError{Problems: []string{"x"}}, http.StatusBadRequest},
		{&marketdata.MissingColumnsError{Columns: []string{"close"}}, http.StatusBadRequest},
		{models.ErrInvalidCredentials, http.StatusUnauthorized},
		{models.ErrDuplicateKey, http.StatusConflict},
		{models.ErrUsernameTaken, http.StatusConflict},
		{models.ErrEmailTaken, http.StatusConflict},
		{jobs.ErrNotCancellable, http.StatusConflict},
		{jobs.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	user := &models.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	f.users.On("Register", mock.Anything, service.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "secret123"}).
		Return(user, nil).Once()
	f.users.On("Register", mock.Anything, mock.Anything).Return(nil, models.ErrUsernameTaken).Once()

	rec := f.do(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"username": "alice", "email": "alice@example.com", "password": "secret123"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hash")

	rec = f.do(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"username": "alice", "email": "other@example.com", "password": "secret123"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.ErrUsernameTaken.Error(), decodeError(t, rec).Error)
}

func TestRegisterValidationDetails(t *testing.T) {
	f := newFixture(t)
	f.users.On("Register", mock.Anything, mock.Anything).
		Return(nil, &service.ValidationError{Problems: []string{"username is required", "email is required"}})

	rec := f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Len(t, resp.Details, 2)

	rec = f.do(http.MethodPost, "/api/v1/auth/register", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.users.On("Login", mock.Anything, service.LoginInput{Username: "alice", Password: "wrong"}, mock.Anything).
		Return(nil, models.ErrInvalidCredentials)
	f.users.On("Login", mock.Anything, service.LoginInput{Username: "alice", Password: "right"}, mock.Anything).
		Return(&service.LoginResponse{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	rec := f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, rec).Error)

	rec = f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "right"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"tok"`)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	f.backtests.On("Status").Return(jobs.Status{Running: true, MaxConcurrentJobs: 10})

	rec := f.do(http.MethodGet, "/api/v1/backtest/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/backtest/status", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/backtest/status", nil, map[string]string{auth.APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/backtest/status", nil, map[string]string{auth.APIKeyHeader: testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"max_concurrent_jobs":10`)

	rec = f.do(http.MethodGet, "/api/v1/backtest/status", nil, f.authed())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	f.users.On("Get", mock.Anything, f.userID).Return(&models.User{ID: f.userID, Username: "alice"}, nil)

	rec := f.do(http.MethodGet, "/api/v1/auth/me", nil, f.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestSubmitBacktest(t *testing.T) {
	f := newFixture(t)
	f.backtests.On("Submit", mock.Anything, &f.userID, mock.MatchedBy(func(req models.BacktestRequest) bool {
		return req.Strategy.Name == "MomentumStrategy" &&
			req.Execution.InitialCapital == 100000 &&
			req.Output.IncludeTrades
	})).Return(&models.BacktestRecord{ID: "bt-0000abcd", Status: models.StatusPending}, nil).Once()

	body := `{"strategy":{"name":"MomentumStrategy"},"data":{"symbols":["AAPL"],"start_date":"2020-01-01","end_date":"2021-01-01"}}`
	rec := f.do(http.MethodPost, "/api/v1/backtest", body, f.authed())
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"backtest_id":"bt-0000abcd","status":"pending","execution_time":0}`, rec.Body.String())
	f.backtests.AssertExpectations(t)
}

func TestSubmitBacktestQueueFull(t *testing.T) {
	f := newFixture(t)
	f.backtests.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.BacktestRecord{ID: "bt-1"}, jobs.ErrQueueFull)

	rec := f.do(http.MethodPost, "/api/v1/backtest", `{}`, f.authed())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitAIBacktest(t *testing.T) {
	f := newFixture(t)
	f.backtests.On("SubmitAI", mock.Anything, (*uuid.UUID)(nil), mock.MatchedBy(func(req models.AIBacktestRequest) bool {
		return req.Objective == models.ObjectiveSharpe && req.MaxCandidates == 50 && req.Data.Symbols[0] == "AAPL"
	})).Return(&models.BacktestRecord{ID: "bt-ai", Status: models.StatusPending}, nil)

	body := `{"data":{"symbols":["aapl"],"start_date":"2020-01-01","end_date":"2021-01-01"}}`
	rec := f.do(http.MethodPost, "/api/v1/ai/backtest", body, map[string]string{auth.APIKeyHeader: testAPIKey})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backtest_id":"bt-ai"`)
}

func TestAIBacktestDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Features.AIBacktestEnabled = false })
	rec := f.do(http.MethodPost, "/api/v1/ai/backtest", `{}`, f.authed())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBacktest(t *testing.T) {
	f := newFixture(t)
	errMsg := "no data for symbol"
	f.backtests.On("Get", mock.Anything, &f.userID, "bt-done").Return(&models.BacktestRecord{
		ID:            "bt-done",
		Status:        models.StatusCompleted,
		ExecutionTime: 1.5,
		Results:       json.RawMessage(`{"overall_metrics":{}}`),
	}, nil)
	f.backtests.On("Get", mock.Anything, &f.userID, "bt-failed").Return(&models.BacktestRecord{
		ID: "bt-failed", Status: models.StatusFailed, Error: &errMsg,
	}, nil)
	f.backtests.On("Get", mock.Anything, &f.userID, "bt-none").Return(nil, models.ErrNotFound)

	rec := f.do(http.MethodGet, "/api/v1/backtest/bt-done", nil, f.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.Contains(t, rec.Body.String(), `"overall_metrics"`)

	rec = f.do(http.MethodGet, "/api/v1/backtest/bt-failed", nil, f.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), errMsg)

	rec = f.do(http.MethodGet, "/api/v1/backtest/bt-none", nil, f.authed())
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Backtest 'bt-none' not found", decodeError(t, rec).Error)
}

func TestListBacktests(t *testing.T) {
	f := newFixture(t)
	f.backtests.On("List", mock.Anything, &f.userID, 5).
		Return([]*models.BacktestRecord{{ID: "bt-1", Status: models.StatusPending}}, nil)

	rec := f.do(http.MethodGet, "/api/v1/backtest?limit=5", nil, f.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	var out []models.BacktestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "bt-1", out[0].BacktestID)

	rec = f.do(http.MethodGet, "/api/v1/backtest?limit=abc", nil, f.authed())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBacktest(t *testing.T) {
	f := newFixture(t)
	f.backtests.On("Cancel", mock.Anything, &f.userID, "bt-pending").Return(nil)
	f.backtests.On("Cancel", mock.Anything, &f.userID, "bt-running").Return(jobs.ErrNotCancellable)

	rec := f.do(http.MethodDelete, "/api/v1/backtest/bt-pending", nil, f.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = f.do(http.MethodDelete, "/api/v1/backtest/bt-running", nil, f.authed())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStrategies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/strategies", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var templates []models.StrategyTemplate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &templates))
	assert.Len(t, templates, 4)

	rec = f.do(http.MethodGet, "/api/v1/strategies/BollingerBands", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"num_std"`)

	rec = f.do(http.MethodGet, "/api/v1/strategies/Nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Strategy 'Nope' not found", decodeError(t, rec).Error)
}

func TestMetricCatalogue(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var catalogue map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalogue))
	assert.Len(t, catalogue, 11)
	assert.Equal(t, "Sharpe Ratio", catalogue["sharpe_ratio"]["name"])
}

func TestWatchlist(t *testing.T) {
	f := newFixture(t)
	item := &models.WatchlistItem{ID: uuid.New(), UserID: f.userID, Symbol: "AAPL"}
	f.watchlists.On("Add", mock.Anything, f.userID, "aapl", "long term").Return(item, true, nil).Once()
	f.watchlists.On("Add", mock.Anything, f.userID, "aapl", "").Return(item, false, nil).Once()
	f.watchlists.On("List", mock.Anything, f.userID).Return([]*models.WatchlistItem{item}, nil)
	f.watchlists.On("Remove", mock.Anything, f.userID, "AAPL").Return(nil)

	rec := f.do(http.MethodPost, "/api/v1/watchlist", WatchlistRequest{Symbol: "aapl", Notes: "long term"}, f.authed())
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/watchlist", WatchlistRequest{Symbol: "aapl"}, f.authed())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/watchlist", nil, f.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"AAPL"`)

	rec = f.do(http.MethodDelete, "/api/v1/watchlist/AAPL", nil, f.authed())
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/watchlist", nil, map[string]string{auth.APIKeyHeader: testAPIKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	f.data.On("Upload", mock.Anything, &f.userID, "mine", "prices.csv", mock.Anything).
		Return(&models.DataUploadResponse{SourceName: "mine", Rows: 2, Symbols: []string{"AAPL"}}, nil)
	f.data.On("Upload", mock.Anything, &f.userID, "", "prices.txt", mock.Anything).
		Return(nil, marketdata.ErrUnsupportedFile)

	body, contentType := multipartBody(t, "prices.csv", "date,symbol,open,high,low,close,volume\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/data/upload?source_name=mine", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source_name":"mine"`)

	body, contentType = multipartBody(t, "prices.txt", "x")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/data/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, marketdata.ErrUnsupportedFile.Error(), decodeError(t, rec).Error)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/data/upload", strings.NewReader("plain"))
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataCatalogue(t *testing.T) {
	f := newFixture(t)
	f.data.On("Sources", mock.Anything).Return([]models.DataSource{{Name: "default"}}, nil)
	f.data.On("Symbols", mock.Anything, "nowhere").Return([]string{}, nil)
	f.data.On("Symbols", mock.Anything, "").Return([]string{"AAPL", "MSFT"}, nil)

	rec := f.do(http.MethodGet, "/api/v1/data/sources", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"default"`)

	rec = f.do(http.MethodGet, "/api/v1/data/symbols?source=nowhere", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/data/symbols", nil, nil)
	assert.JSONEq(t, `["AAPL","MSFT"]`, rec.Body.String())
}

func TestInternalErrorsAreMasked(t *testing.T) {
	f := newFixture(t)
	f.data.On("Sources", mock.Anything).Return(nil, errors.New("connection refused"))

	rec := f.do(http.MethodGet, "/api/v1/data/sources", nil, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec).Error)
}

func TestRequestIDAndNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/nothing-here", nil, map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	rec = f.do(http.MethodGet, "/api/v1/strategies", nil, nil)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Server.RateLimitPerSecond = 0.001
		c.Server.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/strategies", nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/strategies", nil, nil).Code)
	rec := f.do(http.MethodGet, "/api/v1/strategies", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	spoofed := f.do(http.MethodGet, "/api/v1/strategies", nil, map[string]string{"X-Forwarded-For": "10.0.0.9"})
	assert.Equal(t, http.StatusTooManyRequests, spoofed.Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Server.RateLimitPerSecond = 0.001
		c.Server.RateLimitBurst = 2
	})

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 18, limited)
}

func TestRateLimitUsesForwardedForBehindTrustedProxy(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Server.RateLimitPerSecond = 0.001
		c.Server.RateLimitBurst = 1
		c.Server.TrustedProxies = []string{"10.0.0.0/8"}
	})

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
		req.RemoteAddr = "10.1.2.3:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
	// a client-supplied first hop is ignored; the proxy appended the real one
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.50, 198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1, 10.4.4.4"))
}

func TestClientResolver(t *testing.T) {
	resolver := newClientResolver([]string{"10.0.0.0/8", "::1", "not-an-ip"})
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "direct", remote: "203.0.113.7:1234", want: "203.0.113.7"},
		{name: "untrusted peer ignores header", remote: "203.0.113.7:1234", forwarded: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted peer", remote: "10.0.0.1:1234", forwarded: "198.51.100.1", want: "198.51.100.1"},
		{name: "ipv6 proxy", remote: "[::1]:1234", forwarded: "198.51.100.1", want: "198.51.100.1"},
		{name: "chain of proxies", remote: "10.0.0.1:1234", forwarded: "1.1.1.1, 198.51.100.1, 10.9.9.9", want: "198.51.100.1"},
		{name: "trusted peer without header", remote: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "all hops trusted", remote: "10.0.0.1:1234", forwarded: "10.0.0.2", want: "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, resolver.ip(req))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Server.AllowedOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/backtest", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialEvents(t *testing.T, f *fixture) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(f.srv.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) jobs.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event jobs.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestWebsocketBroadcastsJobEvents(t *testing.T) {
	f := newFixture(t)
	conn, done := dialEvents(t, f)
	defer done()

	f.hub.Publish(jobs.Event{Type: jobs.EventCompleted, BacktestID: "bt-1", Status: models.StatusCompleted})

	event := readEvent(t, conn)
	assert.Equal(t, jobs.EventCompleted, event.Type)
	assert.Equal(t, "bt-1", event.BacktestID)
}

func TestWebsocketEventPayloadFields(t *testing.T) {
	f := newFixture(t)
	conn, done := dialEvents(t, f)
	defer done()

	f.hub.Publish(jobs.Event{Type: jobs.EventFailed, BacktestID: "bt-3", Kind: models.JobKindBacktest, Status: models.StatusFailed, Error: "boom"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var payload map[string]interface{}
	require.NoError(t, conn.ReadJSON(&payload))
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"type", "backtest_id", "kind", "status", "error", "timestamp"}, keys)
}

func TestWebsocketSubscriptionFilters(t *testing.T) {
	f := newFixture(t)
	conn, done := dialEvents(t, f)
	defer done()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgTypeSubscribe, BacktestID: "bt-2"}))
	require.Eventually(t, func() bool {
		f.hub.mu.RLock()
		defer f.hub.mu.RUnlock()
		for c := range f.hub.clients {
			return !c.wants("bt-1")
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.Publish(jobs.Event{Type: jobs.EventRunning, BacktestID: "bt-1"})
	f.hub.Publish(jobs.Event{Type: jobs.EventRunning, BacktestID: "bt-2"})

	assert.Equal(t, "bt-2", readEvent(t, conn).BacktestID)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	f := newFixture(t)
	conn, done := dialEvents(t, f)
	defer done()

	f.hub.Close()
	assert.Equal(t, 0, f.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
