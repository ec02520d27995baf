package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/stocktester/internal/models"
)

// TiingoProvider fetches end-of-day prices from the Tiingo REST API
type TiingoProvider struct {
	name       string
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	logger     *logrus.Entry
}

// tiingoPrice is one element of the /tiingo/daily/{ticker}/prices response
type tiingoPrice struct {
	Date        string  `json:"date"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	AdjClose    float64 `json:"adjClose"`
	SplitFactor float64 `json:"splitFactor"`
}

// NewTiingoProvider creates a remote daily-bar provider
func NewTiingoProvider(name string, httpClient *RateLimitedHTTPClient, baseURL, apiKey string, logger *logrus.Logger) *TiingoProvider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if name == "" {
		name = "tiingo"
	}
	return &TiingoProvider{
		name:       name,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.WithField("component", "tiingo"),
	}
}

// Name returns the source name
func (p *TiingoProvider) Name() string { return p.name }

// Describe returns the catalogue entry. Any listed ticker may be requested.
func (p *TiingoProvider) Describe(ctx context.Context) (models.DataSource, error) {
	return models.DataSource{
		Name:        p.name,
		Description: "End-of-day prices from Tiingo",
		Timeframes:  []string{string(models.TimeframeDay)},
	}, nil
}

// Symbols returns an empty list since the remote catalogue is open ended
func (p *TiingoProvider) Symbols(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

// Fetch retrieves daily bars for symbol
func (p *TiingoProvider) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe models.Timeframe) ([]models.Bar, error) {
	if timeframe != models.TimeframeDay {
		return nil, fmt.Errorf("%w: %s serves daily bars only", ErrUnsupportedTimeframe, p.name)
	}

	q := url.Values{}
	q.Set("startDate", start.Format(models.DateLayout))
	q.Set("endDate", end.Format(models.DateLayout))
	q.Set("format", "json")
	endpoint := fmt.Sprintf("%s/tiingo/daily/%s/prices?%s", p.baseURL, url.PathEscape(strings.ToLower(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewProviderError(p.name, ErrCodeNetworkError, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Token "+p.apiKey)
	}

	resp, err := p.httpClient.Do(ctx, req)
	if err != nil {
		return nil, NewProviderError(p.name, ErrCodeNetworkError, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewProviderError(p.name, ErrCodeRateLimitExceeded, "rate limited", ErrRateLimitExceeded)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewProviderError(p.name, ErrCodeAuthenticationFailed, "invalid API token", ErrAuthenticationFailed)
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewProviderError(p.name, ErrCodeNotFound, "unknown ticker "+symbol, ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, NewProviderError(p.name, ErrCodeServerError, fmt.Sprintf("status %d", resp.StatusCode), ErrServerError)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewProviderError(p.name, ErrCodeInvalidData, fmt.Sprintf("status %d: %s", resp.StatusCode, body), nil)
	}

	var prices []tiingoPrice
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, NewProviderError(p.name, ErrCodeInvalidData, "failed to decode prices", err)
	}

	bars := make([]models.Bar, 0, len(prices))
	for _, price := range prices {
		ts, err := time.Parse(time.RFC3339, price.Date)
		if err != nil {
			return nil, NewProviderError(p.name, ErrCodeInvalidData, "invalid date "+price.Date, err)
		}
		bars = append(bars, models.Bar{
			Time:   ts.UTC(),
			Open:   price.Open,
			High:   price.High,
			Low:    price.Low,
			Close:  price.Close,
			Volume: price.Volume,
		})
	}

	p.logger.WithFields(logrus.Fields{"symbol": symbol, "bars": len(bars)}).Debug("Fetched daily bars")
	return bars, nil
}
