// Package health provides the HTTP and gRPC health endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DatabasePinger defines the interface for checking database connectivity.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// WorkerPool reports whether the job workers are accepting work.
type WorkerPool interface {
	Running() bool
}

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ReadyResponse represents the JSON response for readiness check endpoints.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// Config holds the configuration for the health server.
type Config struct {
	ServiceName string
	Version     string
	Port        int
	Logger      *logrus.Logger
	DB          DatabasePinger
	Pool        WorkerPool
}

// Server is a lightweight HTTP server for health check endpoints.
type Server struct {
	serviceName string
	version     string
	port        int
	server      *http.Server
	logger      *logrus.Entry
	db          DatabasePinger
	pool        WorkerPool
	mu          sync.RWMutex
	ready       bool
}

// NewServer creates a new health check server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	port := cfg.Port
	if port == 0 {
		port = 8081
	}
	return &Server{
		serviceName: cfg.ServiceName,
		version:     cfg.Version,
		port:        port,
		logger:      logger.WithField("component", "health"),
		db:          cfg.DB,
		pool:        cfg.Pool,
	}
}

// SetReady marks the server as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady returns whether the server is ready.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Check runs every readiness check. The map holds one entry per dependency.
func (s *Server) Check(ctx context.Context) (bool, map[string]string) {
	checks := make(map[string]string)
	healthy := true

	if s.IsReady() {
		checks["service"] = "ok"
	} else {
		healthy = false
		checks["service"] = "not_ready"
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			healthy = false
			checks["database"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["database"] = "ok"
		}
	}

	if s.pool != nil {
		if s.pool.Running() {
			checks["workers"] = "ok"
		} else {
			healthy = false
			checks["workers"] = "stopped"
		}
	}
	return healthy, checks
}

// Handler returns the probe routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	return mux
}

// Start starts the health check server in the background.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.WithFields(logrus.Fields{
			"port":    s.port,
			"service": s.serviceName,
		}).Info("Health check server starting")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Health check server error")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Health check server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleHealth handles the /health endpoint - basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
	})
}

// handleLive handles the /live endpoint - kubernetes liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: s.serviceName})
}

// handleReady handles the /ready endpoint - checks the database and workers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	healthy, checks := s.Check(r.Context())

	response := ReadyResponse{
		Service:  s.serviceName,
		Checks:   checks,
		Duration: time.Since(start).String(),
	}
	if healthy {
		response.Status = "ok"
		writeJSON(w, http.StatusOK, response)
		return
	}
	response.Status = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, response)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
