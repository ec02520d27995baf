package advisor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/marketdata"
	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
)

// Remote advisor errors
var (
	ErrRemoteUnavailable = errors.New("remote advisor unavailable")
	ErrRemoteBadResponse = errors.New("remote advisor returned an invalid response")
)

// SuggestRequest is sent to the remote advisor
type SuggestRequest struct {
	Symbols       []string                  `json:"symbols"`
	StartDate     models.Date               `json:"start_date"`
	EndDate       models.Date               `json:"end_date"`
	Timeframe     models.Timeframe          `json:"timeframe"`
	Objective     string                    `json:"objective"`
	Strategies    []string                  `json:"strategies"`
	MaxCandidates int                       `json:"max_candidates"`
	Templates     []models.StrategyTemplate `json:"templates"`
}

type suggestResponse struct {
	Candidates []Suggestion `json:"candidates"`
}

// CandidateSource proposes candidates for a search
type CandidateSource interface {
	Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error)
}

// RemoteClient asks an external advisor service for candidates
type RemoteClient struct {
	http    *marketdata.RateLimitedHTTPClient
	baseURL string
	apiKey  string
	logger  *logrus.Entry
}

// NewRemoteClient creates a client for the ai config section
func NewRemoteClient(cfg config.AIConfig, logger *logrus.Logger) *RemoteClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	httpCfg := marketdata.DefaultHTTPClientConfig()
	httpCfg.Name = "advisor"
	if cfg.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	httpCfg.MaxRetries = cfg.RetryAttempts

	return &RemoteClient{
		http:    marketdata.NewRateLimitedHTTPClient(httpCfg, logger),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger.WithField("component", "advisor_client"),
	}
}

// Suggest posts the search to {url}/api/v1/suggest
func (c *RemoteClient) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/suggest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		metrics.RecordAdvisorRequest("network_error")
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RecordAdvisorRequest("http_error")
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemoteUnavailable, resp.StatusCode, msg)
	}

	var decoded suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.RecordAdvisorRequest("bad_response")
		return nil, fmt.Errorf("%w: %v", ErrRemoteBadResponse, err)
	}

	metrics.RecordAdvisorRequest("success")
	c.logger.WithField("candidates", len(decoded.Candidates)).Debug("Remote advisor responded")
	return decoded.Candidates, nil
}

// Close releases idle connections
func (c *RemoteClient) Close() error {
	return c.http.Close()
}

// CachedSource memoizes a CandidateSource by request hash
type CachedSource struct {
	source CandidateSource
	cache  *cache.Cache
	ttl    time.Duration
}

// NewCachedSource wraps source with a TTL cache
func NewCachedSource(source CandidateSource, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSource{
		source: source,
		cache:  cache.New(ttl, ttl*2),
		ttl:    ttl,
	}
}

// Suggest returns cached candidates when the same search was answered recently
func (c *CachedSource) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	key, err := requestHash(req)
	if err != nil {
		return nil, err
	}
	if v, found := c.cache.Get(key); found {
		if suggestions, ok := v.([]Suggestion); ok {
			metrics.RecordCacheLookup("advisor", true)
			return suggestions, nil
		}
	}
	metrics.RecordCacheLookup("advisor", false)

	suggestions, err := c.source.Suggest(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, suggestions, c.ttl)
	return suggestions, nil
}

// IsCached reports whether req would be answered from the cache
func (c *CachedSource) IsCached(req SuggestRequest) bool {
	key, err := requestHash(req)
	if err != nil {
		return false
	}
	_, found := c.cache.Get(key)
	return found
}

func requestHash(req SuggestRequest) (string, error) {
	// templates are derived from the registry and do not vary per request
	req.Templates = nil
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to hash request: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
