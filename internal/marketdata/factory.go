package marketdata

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/repository"
)

// NewManagerFromConfig builds the manager with the cache and every enabled provider
func NewManagerFromConfig(cfg *config.Config, repo repository.DataSourceRepository, logger *logrus.Logger) *Manager {
	cache := NewBarCache(cfg.Data.CacheTTL(), cfg.Data.CacheSize)
	m := NewManager(cache, repo, cfg.Engine.MaxSymbolsPerBacktest, logger)

	if cfg.MarketData.Enabled {
		m.Register(NewTiingoProvider(
			cfg.MarketData.Name,
			NewRateLimitedHTTPClient(MarketDataHTTPConfig(cfg.MarketData), logger),
			cfg.MarketData.BaseURL,
			cfg.MarketData.APIKey,
			logger,
		))
	}
	return m
}

// MarketDataHTTPConfig maps the market_data section onto client settings
func MarketDataHTTPConfig(md config.MarketDataConfig) HTTPClientConfig {
	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Name = md.Name
	if md.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(md.TimeoutSeconds) * time.Second
	}
	if md.RequestsPerSecond > 0 {
		httpCfg.RateLimit = md.RequestsPerSecond
	}
	httpCfg.MaxRetries = md.RetryAttempts
	return httpCfg
}
