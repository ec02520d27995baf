// Package marketdata loads OHLCV bars for backtests from synthetic, remote and uploaded sources.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/stocktester/internal/models"
)

// Provider supplies bars for one named data source
type Provider interface {
	// Name returns the source name requests refer to
	Name() string

	// Describe returns the catalogue entry served by /data/sources
	Describe(ctx context.Context) (models.DataSource, error)

	// Symbols lists the tickers the source can serve. An empty list means the
	// source accepts any ticker.
	Symbols(ctx context.Context) ([]string, error)

	// Fetch returns the bars for symbol in [start, end] ordered by time
	Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe models.Timeframe) ([]models.Bar, error)
}

// ProviderError represents a failure reported by a provider
type ProviderError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e ProviderError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
)

// Sentinel errors
var (
	ErrUnknownSource        = errors.New("unknown data source")
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
	ErrNoBars               = errors.New("no data for symbol")
	ErrTooManySymbols       = errors.New("too many symbols")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("data not found")
	ErrServerError          = errors.New("server error")
	ErrCircuitOpen          = errors.New("circuit breaker open")
)

// NewProviderError creates a new provider error
func NewProviderError(source, code, message string, err error) ProviderError {
	return ProviderError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
