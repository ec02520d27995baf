// Package config provides configuration management for the StockTester service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Engine     EngineConfig     `mapstructure:"engine" validate:"required"`
	Data       DataConfig       `mapstructure:"data" validate:"required"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	AI         AIConfig         `mapstructure:"ai"`
	Retention  RetentionConfig  `mapstructure:"retention" validate:"required"`
	Health     HealthConfig     `mapstructure:"health" validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics" validate:"required"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Features   FeaturesConfig   `mapstructure:"features"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
}

// ServerConfig represents the REST API listener configuration
type ServerConfig struct {
	Host                string   `mapstructure:"host"`
	Port                int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds" validate:"required,gt=0"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds" validate:"required,gt=0"`
	AllowedOrigins      []string `mapstructure:"allowed_origins" validate:"required,min=1"`
	RateLimitPerSecond  float64  `mapstructure:"rate_limit_per_second" validate:"gte=0"`
	RateLimitBurst      int      `mapstructure:"rate_limit_burst" validate:"gte=0"`
	MaxUploadMB         int      `mapstructure:"max_upload_mb" validate:"required,gt=0"`
	TrustedProxies      []string `mapstructure:"trusted_proxies" validate:"omitempty,dive,cidr|ip"`
}

// AuthConfig represents token and API key configuration
type AuthConfig struct {
	JWTSecret       string   `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTLMinutes int      `mapstructure:"token_ttl_minutes" validate:"required,gt=0"`
	APIKeys         []string `mapstructure:"api_keys"`
	BcryptCost      int      `mapstructure:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
}

// EngineConfig represents the backtest job engine configuration
type EngineConfig struct {
	MaxConcurrentJobs     int     `mapstructure:"max_concurrent_jobs" validate:"required,gt=0"`
	QueueSize             int     `mapstructure:"queue_size" validate:"required,gt=0"`
	JobTimeoutSeconds     int     `mapstructure:"job_timeout_seconds" validate:"required,gt=0"`
	MaxSymbolsPerBacktest int     `mapstructure:"max_symbols_per_backtest" validate:"required,gt=0"`
	PositionSize          float64 `mapstructure:"position_size" validate:"required,gt=0"`
	PeriodsPerYear        int     `mapstructure:"periods_per_year" validate:"required,gt=0"`
	RiskFreeRate          float64 `mapstructure:"risk_free_rate" validate:"gte=0,lte=1"`
	MonteCarloIterations  int     `mapstructure:"monte_carlo_iterations" validate:"required,gt=0"`
}

// DataConfig represents market data cache settings
type DataConfig struct {
	DefaultSource   string   `mapstructure:"default_source" validate:"required"`
	CacheSize       int      `mapstructure:"cache_size" validate:"required,gt=0"`
	CacheTTLMinutes int      `mapstructure:"cache_ttl_minutes" validate:"required,gt=0"`
	Timeframes      []string `mapstructure:"timeframes" validate:"required,min=1,timeframes"`
}

// MarketDataConfig represents the remote daily bar provider
type MarketDataConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	Name              string  `mapstructure:"name" validate:"required_if=Enabled true"`
	BaseURL           string  `mapstructure:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"gte=0"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	RetryAttempts     int     `mapstructure:"retry_attempts" validate:"gte=0"`
}

// AIConfig represents the strategy advisor configuration
type AIConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	URL             string `mapstructure:"url" validate:"omitempty,url"`
	APIKey          string `mapstructure:"api_key"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" validate:"gte=0"`
	RetryAttempts   int    `mapstructure:"retry_attempts" validate:"gte=0"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes" validate:"gte=0"`
	MaxCandidates   int    `mapstructure:"max_candidates" validate:"gte=0"`
}

// RetentionConfig represents result retention rules
type RetentionConfig struct {
	ResultDays      int    `mapstructure:"result_days" validate:"required,gt=0"`
	CleanupSchedule string `mapstructure:"cleanup_schedule" validate:"required"`
}

// HealthConfig represents health probe listeners
type HealthConfig struct {
	Port     int `mapstructure:"port" validate:"required,min=1,max=65535"`
	GRPCPort int `mapstructure:"grpc_port" validate:"omitempty,min=1,max=65535"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// TracingConfig represents AWS X-Ray configuration
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DaemonAddr   string  `mapstructure:"daemon_addr"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
}

// FeaturesConfig represents feature flags
type FeaturesConfig struct {
	AIBacktestEnabled bool `mapstructure:"ai_backtest_enabled"`
	DataUploadEnabled bool `mapstructure:"data_upload_enabled"`
	WebsocketEnabled  bool `mapstructure:"websocket_enabled"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ServerAddress returns the host:port the API listens on
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TokenTTL returns the JWT lifetime
func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// JobTimeout returns the per-job execution deadline
func (c *EngineConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// CacheTTL returns the market data cache lifetime
func (c *DataConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}
