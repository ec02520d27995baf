package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "STOCKTESTER"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables.
// Placeholders in the YAML file (${VAR_NAME}) are expanded before parsing.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for every optional field.
// A missing file is not an error; defaults and environment variables are used instead.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// ReloadFromEnv reloads the configuration from STOCKTESTER_CONFIG_PATH when it is set
func ReloadFromEnv(cfg *Config) error {
	envPath := os.Getenv(envPrefix + "_CONFIG_PATH")
	if envPath == "" {
		return nil
	}

	newCfg, err := LoadWithDefaults(envPath)
	if err != nil {
		return err
	}
	*cfg = *newCfg
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stocktester")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "stocktester")
	v.SetDefault("database.user", "stocktester")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 20)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_second", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 1440)
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("engine.max_concurrent_jobs", 10)
	v.SetDefault("engine.queue_size", 1000)
	v.SetDefault("engine.job_timeout_seconds", 600)
	v.SetDefault("engine.max_symbols_per_backtest", 5000)
	v.SetDefault("engine.position_size", 100.0)
	v.SetDefault("engine.periods_per_year", 252)
	v.SetDefault("engine.risk_free_rate", 0.0)
	v.SetDefault("engine.monte_carlo_iterations", 1000)

	v.SetDefault("data.default_source", "default")
	v.SetDefault("data.cache_size", 100)
	v.SetDefault("data.cache_ttl_minutes", 60)
	v.SetDefault("data.timeframes", []string{"1d", "1h"})

	v.SetDefault("market_data.enabled", false)
	v.SetDefault("market_data.name", "tiingo")
	v.SetDefault("market_data.base_url", "https://api.tiingo.com")
	v.SetDefault("market_data.api_key", "")
	v.SetDefault("market_data.timeout_seconds", 30)
	v.SetDefault("market_data.requests_per_second", 2.0)
	v.SetDefault("market_data.retry_attempts", 3)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.url", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("ai.retry_attempts", 3)
	v.SetDefault("ai.cache_ttl_minutes", 30)
	v.SetDefault("ai.max_candidates", 50)

	v.SetDefault("retention.result_days", 30)
	v.SetDefault("retention.cleanup_schedule", "0 3 * * *")

	v.SetDefault("health.port", 8081)
	v.SetDefault("health.grpc_port", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.daemon_addr", "127.0.0.1:2000")
	v.SetDefault("tracing.sampling_rate", 0.1)

	v.SetDefault("features.ai_backtest_enabled", true)
	v.SetDefault("features.data_upload_enabled", true)
	v.SetDefault("features.websocket_enabled", true)
}
