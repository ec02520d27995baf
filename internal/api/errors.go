package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/marketdata"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/service"
	"github.com/yourusername/stocktester/internal/strategy"
	"github.com/yourusername/stocktester/internal/tracing"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Status  string   `json:"status"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var verr *service.ValidationError
	var missing *marketdata.MissingColumnsError
	switch {
	case errors.As(err, &verr), errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, strategy.ErrUnknownStrategy):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrDuplicateKey),
		errors.Is(err, models.ErrUsernameTaken),
		errors.Is(err, models.ErrEmailTaken),
		errors.Is(err, jobs.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrQueueFull),
		errors.Is(err, jobs.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, marketdata.ErrUnsupportedFile),
		errors.Is(err, marketdata.ErrInvalidCSV),
		errors.Is(err, marketdata.ErrEmptyUpload),
		errors.Is(err, models.ErrInvalidID),
		errors.Is(err, models.ErrInvalidSymbol):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: "failed", Error: message})
}

// writeError renders err with its mapped status. Internal errors are logged
// and their message is replaced.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Status: "failed", Error: err.Error()}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "Invalid request"
		resp.Details = verr.Problems
	}
	if status == http.StatusInternalServerError {
		tracing.AddError(r.Context(), err)
		s.requestLogger(r).WithError(err).Error("Request failed")
		resp.Error = "Internal server error"
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body, reporting malformed input as a validation problem
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return &service.ValidationError{Problems: []string{"malformed JSON body: " + err.Error()}}
	}
	return nil
}

// maxJSONBody bounds request bodies outside of uploads
const maxJSONBody = 1 << 20

func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return nil, &service.ValidationError{Problems: []string{"failed to read body: " + err.Error()}}
	}
	return raw, nil
}
