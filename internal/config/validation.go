package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var supportedTimeframes = map[string]bool{
	"1d": true, "1h": true, "1m": true, "1s": true, "tick": true,
}

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("timeframes", validateTimeframes)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateTimeframes(fl validator.FieldLevel) bool {
	timeframes, ok := fl.Field().Interface().([]string)
	if !ok || len(timeframes) == 0 {
		return false
	}
	for _, tf := range timeframes {
		if !supportedTimeframes[tf] {
			return false
		}
	}
	return true
}

func validateCrossField(cfg *Config) error {
	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("max_idle_connections cannot exceed max_connections")
	}

	if cfg.Engine.MaxConcurrentJobs > cfg.Engine.QueueSize {
		return fmt.Errorf("max_concurrent_jobs cannot exceed queue_size")
	}

	ports := map[int]string{}
	for name, port := range map[string]int{
		"server.port":      cfg.Server.Port,
		"health.port":      cfg.Health.Port,
		"metrics.port":     cfg.Metrics.Port,
		"health.grpc_port": cfg.Health.GRPCPort,
	} {
		if port == 0 {
			continue
		}
		if other, ok := ports[port]; ok {
			return fmt.Errorf("%s and %s cannot share port %d", other, name, port)
		}
		ports[port] = name
	}

	if _, err := cron.ParseStandard(cfg.Retention.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid retention cleanup_schedule: %w", err)
	}

	if cfg.AI.Enabled && cfg.AI.URL == "" {
		return fmt.Errorf("ai.url is required when the remote advisor is enabled")
	}

	return nil
}

func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var b strings.Builder
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required", "required_if":
			fmt.Fprintf(&b, "- Field '%s' is required\n", field)
		case "url":
			fmt.Fprintf(&b, "- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			fmt.Fprintf(&b, "- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			fmt.Fprintf(&b, "- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			fmt.Fprintf(&b, "- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			fmt.Fprintf(&b, "- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "timeframes":
			fmt.Fprintf(&b, "- Field '%s' must only contain: 1d, 1h, 1m, 1s, tick\n", field)
		case "cidr|ip":
			fmt.Fprintf(&b, "- Field '%s' must be an IP address or CIDR range, got '%v'\n", field, value)
		case "oneof":
			fmt.Fprintf(&b, "- Field '%s' has invalid value '%v'\n", field, value)
		default:
			fmt.Fprintf(&b, "- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", b.String())
}

// ValidateEnvironment validates environment-specific requirements
func ValidateEnvironment(cfg *Config) error {
	if cfg.IsProduction() {
		if cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires database SSL mode to be 'require' or 'verify-full'")
		}
		if len(cfg.Auth.JWTSecret) < 32 {
			return fmt.Errorf("production environment requires a jwt_secret of at least 32 characters")
		}
		if isTestCredential(cfg.Auth.JWTSecret) {
			return fmt.Errorf("production environment should not use a placeholder jwt_secret")
		}
		for _, origin := range cfg.Server.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("production environment should not allow every CORS origin")
			}
		}
	}

	return nil
}

var testCredentialPattern = regexp.MustCompile(`(?i)(test|demo|example|placeholder|changeme|YOUR_)`)

func isTestCredential(credential string) bool {
	return testCredentialPattern.MatchString(credential)
}
