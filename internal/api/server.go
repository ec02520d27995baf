// Package api provides the REST and websocket server.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/service"
	"github.com/yourusername/stocktester/internal/strategy"
	"github.com/yourusername/stocktester/internal/tracing"
)

// UserService handles accounts
type UserService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, in service.LoginInput, remoteAddr string) (*service.LoginResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// WatchlistService handles watchlists
type WatchlistService interface {
	List(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistItem, error)
	Add(ctx context.Context, userID uuid.UUID, symbol, notes string) (*models.WatchlistItem, bool, error)
	Remove(ctx context.Context, userID uuid.UUID, symbol string) error
}

// BacktestService handles backtest jobs
type BacktestService interface {
	Submit(ctx context.Context, userID *uuid.UUID, req models.BacktestRequest) (*models.BacktestRecord, error)
	SubmitAI(ctx context.Context, userID *uuid.UUID, req models.AIBacktestRequest) (*models.BacktestRecord, error)
	Get(ctx context.Context, userID *uuid.UUID, id string) (*models.BacktestRecord, error)
	List(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.BacktestRecord, error)
	Cancel(ctx context.Context, userID *uuid.UUID, id string) error
	Status() jobs.Status
}

// DataService handles market data sources
type DataService interface {
	Sources(ctx context.Context) ([]models.DataSource, error)
	Symbols(ctx context.Context, source string) ([]string, error)
	Upload(ctx context.Context, userID *uuid.UUID, sourceName, filename string, r io.Reader) (*models.DataUploadResponse, error)
}

// Dependencies are the collaborators the handlers call
type Dependencies struct {
	Users      UserService
	Watchlists WatchlistService
	Backtests  BacktestService
	Data       DataService
	Strategies *strategy.Registry
	Auth       *auth.Authenticator
	Hub        *Hub
}

// Server is the REST API server
type Server struct {
	cfg        *config.Config
	users      UserService
	watchlists WatchlistService
	backtests  BacktestService
	data       DataService
	strategies *strategy.Registry
	auth       *auth.Authenticator
	hub        *Hub
	clients    *clientResolver

	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	logger     *logrus.Entry
}

// NewServer builds the router and middleware chain
func NewServer(cfg *config.Config, deps Dependencies, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		users:      deps.Users,
		watchlists: deps.Watchlists,
		backtests:  deps.Backtests,
		data:       deps.Data,
		strategies: deps.Strategies,
		auth:       deps.Auth,
		hub:        deps.Hub,
		clients:    newClientResolver(cfg.Server.TrustedProxies),
		router:     mux.NewRouter(),
		logger:     logger.WithField("component", "api"),
	}
	s.setupRoutes()

	var handler http.Handler = s.router
	if cfg.Server.RateLimitPerSecond > 0 {
		handler = newClientLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst).middleware(s.clients, handler)
	}
	handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", auth.APIKeyHeader, RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
	}).Handler(handler)
	handler = requestIDMiddleware(handler)
	if cfg.Tracing.Enabled {
		handler = tracing.Middleware(cfg.App.Name)(handler)
	}
	s.handler = handler
	return s
}

func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	s.router.Use(s.observe)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Auth
	v1.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/me", s.requireAuth(s.handleMe)).Methods(http.MethodGet)

	// Backtests
	v1.HandleFunc("/backtest", s.requireAuth(s.handleSubmitBacktest)).Methods(http.MethodPost)
	v1.HandleFunc("/backtest", s.requireAuth(s.handleListBacktests)).Methods(http.MethodGet)
	v1.HandleFunc("/backtest/status", s.requireAuth(s.handleEngineStatus)).Methods(http.MethodGet)
	v1.HandleFunc("/backtest/{id}", s.requireAuth(s.handleGetBacktest)).Methods(http.MethodGet)
	v1.HandleFunc("/backtest/{id}", s.requireAuth(s.handleCancelBacktest)).Methods(http.MethodDelete)
	if s.cfg.Features.AIBacktestEnabled {
		v1.HandleFunc("/ai/backtest", s.requireAuth(s.handleSubmitAIBacktest)).Methods(http.MethodPost)
	}

	// Catalogue
	v1.HandleFunc("/strategies", s.handleListStrategies).Methods(http.MethodGet)
	v1.HandleFunc("/strategies/{id}", s.handleGetStrategy).Methods(http.MethodGet)
	v1.HandleFunc("/metrics", s.handleListMetrics).Methods(http.MethodGet)

	// Watchlist
	v1.HandleFunc("/watchlist", s.requireAuth(s.handleListWatchlist)).Methods(http.MethodGet)
	v1.HandleFunc("/watchlist", s.requireAuth(s.handleAddWatchlist)).Methods(http.MethodPost)
	v1.HandleFunc("/watchlist/{symbol}", s.requireAuth(s.handleRemoveWatchlist)).Methods(http.MethodDelete)

	// Data
	if s.cfg.Features.DataUploadEnabled {
		v1.HandleFunc("/data/upload", s.requireAuth(s.handleUpload)).Methods(http.MethodPost)
	}
	v1.HandleFunc("/data/sources", s.handleListSources).Methods(http.MethodGet)
	v1.HandleFunc("/data/symbols", s.handleListSymbols).Methods(http.MethodGet)

	// Events
	if s.cfg.Features.WebsocketEnabled && s.hub != nil {
		v1.Handle("/ws", s.hub).Methods(http.MethodGet)
	}
}

// Handler returns the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves the API in the background until ctx ends or Shutdown is called
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.WithField("addr", addr).Info("API server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("API server error")
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("API server shutting down")
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
