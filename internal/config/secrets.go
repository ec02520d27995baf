package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const (
	errLoadAWSConfig           = "failed to load AWS config: %w"
	errGetSecretFromAWSSecrets = "failed to get secret from AWS Secrets Manager: %w"
	errParseSecretJSON         = "failed to parse secret JSON: %w"
	errParseSecretBinary       = "failed to parse secret binary: %w"
	errNoSecretDataFound       = "no secret data found in AWS Secrets Manager"
)

// SecretsOverlay represents the structure of secrets stored in AWS Secrets Manager
type SecretsOverlay struct {
	DatabasePassword string   `json:"database_password"`
	JWTSecret        string   `json:"jwt_secret"`
	APIKeys          []string `json:"api_keys"`
	MarketDataAPIKey string   `json:"market_data_api_key"`
	AIAPIKey         string   `json:"ai_api_key"`
}

// SecretsClient is the subset of the Secrets Manager API used for config overlays
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func newSecretsClient(ctx context.Context, region string) (SecretsClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf(errLoadAWSConfig, err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

func fetchSecrets(ctx context.Context, client SecretsClient, secretName string) (*SecretsOverlay, error) {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf(errGetSecretFromAWSSecrets, err)
	}
	return parseSecretData(result)
}

func parseSecretData(result *secretsmanager.GetSecretValueOutput) (*SecretsOverlay, error) {
	var secrets SecretsOverlay
	switch {
	case result.SecretString != nil:
		if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
			return nil, fmt.Errorf(errParseSecretJSON, err)
		}
	case result.SecretBinary != nil:
		if err := json.Unmarshal(result.SecretBinary, &secrets); err != nil {
			return nil, fmt.Errorf(errParseSecretBinary, err)
		}
	default:
		return nil, fmt.Errorf(errNoSecretDataFound)
	}
	return &secrets, nil
}

func overlaySecretsOnConfig(cfg *Config, secrets *SecretsOverlay) {
	if secrets.DatabasePassword != "" {
		cfg.Database.Password = secrets.DatabasePassword
	}
	if secrets.JWTSecret != "" {
		cfg.Auth.JWTSecret = secrets.JWTSecret
	}
	if len(secrets.APIKeys) > 0 {
		cfg.Auth.APIKeys = append([]string{}, secrets.APIKeys...)
	}
	if secrets.MarketDataAPIKey != "" {
		cfg.MarketData.APIKey = secrets.MarketDataAPIKey
	}
	if secrets.AIAPIKey != "" {
		cfg.AI.APIKey = secrets.AIAPIKey
	}
}

// LoadSecretsFromAWS retrieves secrets from AWS Secrets Manager and overlays them onto the configuration
func LoadSecretsFromAWS(ctx context.Context, cfg *Config, region, secretName string) error {
	client, err := newSecretsClient(ctx, region)
	if err != nil {
		return err
	}
	return ApplySecrets(ctx, cfg, client, secretName)
}

// ApplySecrets fetches secretName through client and overlays any non-empty values
func ApplySecrets(ctx context.Context, cfg *Config, client SecretsClient, secretName string) error {
	secrets, err := fetchSecrets(ctx, client, secretName)
	if err != nil {
		return err
	}
	overlaySecretsOnConfig(cfg, secrets)
	return nil
}

// LoadForService loads path with defaults, overlays AWS secrets when
// AWS_SECRETS_ENABLED=true and validates the result.
func LoadForService(ctx context.Context, path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return nil, fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := LoadSecretsFromAWS(ctx, cfg, region, secretName); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
