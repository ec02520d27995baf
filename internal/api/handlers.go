package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/backtest"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/service"
	"github.com/yourusername/stocktester/internal/strategy"
	"github.com/yourusername/stocktester/internal/tracing"
)

// SubmitResponse acknowledges a queued job
type SubmitResponse struct {
	BacktestID    string                `json:"backtest_id"`
	Status        models.BacktestStatus `json:"status"`
	ExecutionTime float64               `json:"execution_time"`
}

// WatchlistRequest is the payload of POST /api/v1/watchlist
type WatchlistRequest struct {
	Symbol string `json:"symbol"`
	Notes  string `json:"notes"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.users.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.users.Login(r.Context(), in, s.clients.ip(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	if p.UserID == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"api_key": true})
		return
	}
	user, err := s.users.Get(r.Context(), *p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSubmitBacktest(w http.ResponseWriter, r *http.Request) {
	req := models.NewBacktestRequest()
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := s.backtests.Submit(r.Context(), callerID(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tracing.AddAnnotation(r.Context(), "backtest_id", record.ID)
	writeJSON(w, http.StatusAccepted, SubmitResponse{BacktestID: record.ID, Status: record.Status})
}

func (s *Server) handleSubmitAIBacktest(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := models.DecodeAIBacktestRequest(raw)
	if err != nil {
		s.writeError(w, r, &service.ValidationError{Problems: []string{err.Error()}})
		return
	}
	record, err := s.backtests.SubmitAI(r.Context(), callerID(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tracing.AddAnnotation(r.Context(), "backtest_id", record.ID)
	writeJSON(w, http.StatusAccepted, SubmitResponse{BacktestID: record.ID, Status: record.Status})
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, &service.ValidationError{Problems: []string{"limit must be a positive integer"}})
			return
		}
		limit = n
	}
	records, err := s.backtests.List(r.Context(), callerID(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]models.BacktestResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ToResponse())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := s.backtests.Get(r.Context(), callerID(r), id)
	if errors.Is(err, models.ErrNotFound) {
		writeErrorMessage(w, http.StatusNotFound, fmt.Sprintf("Backtest '%s' not found", id))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record.ToResponse())
}

func (s *Server) handleCancelBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.backtests.Cancel(r.Context(), callerID(r), id)
	if errors.Is(err, models.ErrNotFound) {
		writeErrorMessage(w, http.StatusNotFound, fmt.Sprintf("Backtest '%s' not found", id))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{BacktestID: id, Status: models.StatusCancelled})
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backtests.Status())
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.strategies.Templates())
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tmpl, err := s.strategies.Template(id)
	if errors.Is(err, strategy.ErrUnknownStrategy) {
		writeErrorMessage(w, http.StatusNotFound, fmt.Sprintf("Strategy '%s' not found", id))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, backtest.AvailableMetrics)
}

func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	items, err := s.watchlists.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var in WatchlistRequest
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, created, err := s.watchlists.Add(r.Context(), userID, in.Symbol, in.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, item)
}

func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.watchlists.Remove(r.Context(), userID, mux.Vars(r)["symbol"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeError(w, r, &service.ValidationError{Problems: []string{"invalid multipart upload: " + err.Error()}})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, &service.ValidationError{Problems: []string{"file is required"}})
		return
	}
	defer file.Close()

	resp, err := s.data.Upload(r.Context(), callerID(r), r.URL.Query().Get("source_name"), header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.data.Sources(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.data.Symbols(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

// requireUser rejects API key callers on routes that act on a user's own data
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id := callerID(r)
	if id == nil {
		writeErrorMessage(w, http.StatusForbidden, "This endpoint requires a user token")
		return uuid.Nil, false
	}
	return *id, true
}
