package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/stocktester/internal/metrics"
)

// HTTPClientConfig holds configuration for HTTP clients
type HTTPClientConfig struct {
	Name              string // label for logs and metrics
	Timeout           time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RateLimit         float64 // requests per second
	CircuitBreakerMax int     // consecutive failures before the circuit opens
	CircuitCooldown   time.Duration
}

// DefaultHTTPClientConfig returns recommended defaults
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryWaitMin:      100 * time.Millisecond,
		RetryWaitMax:      10 * time.Second,
		RateLimit:         5.0,
		CircuitBreakerMax: 5,
		CircuitCooldown:   time.Minute,
	}
}

// RateLimitedHTTPClient wraps retryablehttp.Client with rate limiting and a circuit breaker.
// After CircuitBreakerMax consecutive failures requests are refused until CircuitCooldown passes.
type RateLimitedHTTPClient struct {
	name    string
	client  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *logrus.Entry

	mu                sync.Mutex
	circuitBreakerMax int
	cooldown          time.Duration
	consecutiveErrors int
	openedAt          time.Time
	lastError         error
	now               func() time.Time
}

// NewRateLimitedHTTPClient creates a new rate-limited HTTP client
func NewRateLimitedHTTPClient(cfg HTTPClientConfig, logger *logrus.Logger) *RateLimitedHTTPClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultHTTPClientConfig().RateLimit
	}
	if cfg.CircuitBreakerMax <= 0 {
		cfg.CircuitBreakerMax = DefaultHTTPClientConfig().CircuitBreakerMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = customRetryPolicy()
	retryClient.Logger = nil

	if cfg.Name == "" {
		cfg.Name = "http"
	}

	return &RateLimitedHTTPClient{
		name:              cfg.Name,
		client:            retryClient,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:            logger.WithFields(logrus.Fields{"component": "http_client", "client": cfg.Name}),
		circuitBreakerMax: cfg.CircuitBreakerMax,
		cooldown:          cfg.CircuitCooldown,
		now:               time.Now,
	}
}

// Do executes an HTTP request with rate limiting and circuit breaker
func (c *RateLimitedHTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.checkCircuit(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	retryReq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(retryReq)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}
	if resp.StatusCode >= 500 {
		c.recordFailure(fmt.Errorf("server returned %d", resp.StatusCode))
	} else {
		c.recordSuccess()
	}
	return resp, nil
}

// Get executes a GET request
func (c *RateLimitedHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post executes a POST request
func (c *RateLimitedHTTPClient) Post(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

// CircuitOpen reports whether requests are currently being refused
func (c *RateLimitedHTTPClient) CircuitOpen() bool {
	return c.checkCircuit() != nil
}

// Close closes any resources held by the client
func (c *RateLimitedHTTPClient) Close() error {
	c.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (c *RateLimitedHTTPClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openedAt.IsZero() {
		return nil
	}
	if c.cooldown > 0 && c.now().Sub(c.openedAt) >= c.cooldown {
		// half-open: let the next request try the upstream
		c.openedAt = time.Time{}
		c.consecutiveErrors = c.circuitBreakerMax - 1
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCircuitOpen, c.lastError)
}

func (c *RateLimitedHTTPClient) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors++
	c.lastError = err
	if c.consecutiveErrors >= c.circuitBreakerMax && c.openedAt.IsZero() {
		c.openedAt = c.now()
		metrics.RecordCircuitBreakerTrip(c.name)
		c.logger.WithError(err).WithField("consecutive_errors", c.consecutiveErrors).Warn("Circuit breaker opened")
	}
}

func (c *RateLimitedHTTPClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors = 0
	c.openedAt = time.Time{}
	c.lastError = nil
}

// customRetryPolicy retries network errors, 429 and 5xx gateway responses
func customRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true, nil
		}
		return false, nil
	}
}
