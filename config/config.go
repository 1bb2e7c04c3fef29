// Package config has the configuration for the app
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environments
const (
	EnvDevelopment = "dev"
	EnvStaging     = "staging"
	EnvProduction  = "prod"
	EnvTest        = "test"
)

// Artifact sources
const (
	SourceFile  = "file"
	SourceMinIO = "minio"
)

// Config holds all application configuration
type Config struct {
	Port              string `envconfig:"PORT" default:"8000"`
	Address           string `envconfig:"ADDRESS" default:"127.0.0.1"`
	Env               string `envconfig:"ENV" default:"dev"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	LogDir            string `envconfig:"LOG_DIR" default:"logs"`
	LogRetentionWeeks int    `envconfig:"LOG_RETENTION_WEEKS" default:"4"`
	MaxLogFileSize    int64  `envconfig:"MAX_LOG_FILE_SIZE" default:"104857600"` // bytes
	MaxRequestBody    int64  `envconfig:"MAX_REQUEST_BODY" default:"1048576"`    // bytes
	MaxHeaderSize     int64  `envconfig:"MAX_HEADER_SIZE" default:"1048576"`     // bytes

	ArtifactSource      string `envconfig:"ARTIFACT_SOURCE" default:"file"`
	ArtifactDir         string `envconfig:"ARTIFACT_DIR" default:"models"`
	VectorizerFile      string `envconfig:"VECTORIZER_FILE" default:"tfidf_vectorizer.json"`
	RatingModelFile     string `envconfig:"RATING_MODEL_FILE" default:"xgb_rating_model.json"`
	SideEffectModelFile string `envconfig:"SIDE_EFFECT_MODEL_FILE" default:"xgb_side_effect_model.json"`

	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"127.0.0.1:9000"`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket    string `envconfig:"MINIO_BUCKET" default:"models"`
	MinIOPrefix    string `envconfig:"MINIO_PREFIX"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// 0 disables periodic refresh
	ArtifactRefreshInterval time.Duration `envconfig:"ARTIFACT_REFRESH_INTERVAL" default:"0"`
	MaxBatchSize            int           `envconfig:"MAX_BATCH_SIZE" default:"500"`
	MaxTextFieldLength      int           `envconfig:"MAX_TEXT_FIELD_LENGTH" default:"10000"`
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg.Env = strings.ToLower(cfg.Env)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.ArtifactSource = strings.ToLower(cfg.ArtifactSource)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsDev reports whether development-only routes should be mounted
func (c *Config) IsDev() bool {
	return c.Env == EnvDevelopment
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateOneOf(cfg.Env, EnvDevelopment, EnvStaging, EnvProduction, EnvTest); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateOneOf(cfg.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if cfg.LogRetentionWeeks <= 0 || cfg.LogRetentionWeeks > 52 {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: must be between 1 and 52, got: %d", cfg.LogRetentionWeeks)
	}

	// Minimum 1MB, maximum 1GB
	if cfg.MaxLogFileSize < 1024*1024 || cfg.MaxLogFileSize > 1024*1024*1024 {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: must be between 1MB and 1GB, got: %d bytes", cfg.MaxLogFileSize)
	}

	if err := validateArtifacts(cfg); err != nil {
		return err
	}

	if cfg.ArtifactRefreshInterval < 0 {
		return fmt.Errorf("invalid ARTIFACT_REFRESH_INTERVAL: must not be negative")
	}
	if cfg.ArtifactRefreshInterval > 0 && cfg.ArtifactRefreshInterval < time.Minute {
		return fmt.Errorf("invalid ARTIFACT_REFRESH_INTERVAL: must be at least 1m, got: %s", cfg.ArtifactRefreshInterval)
	}

	if cfg.MaxBatchSize < 1 || cfg.MaxBatchSize > 10000 {
		return fmt.Errorf("invalid MAX_BATCH_SIZE: must be between 1 and 10000, got: %d", cfg.MaxBatchSize)
	}

	if cfg.MaxTextFieldLength < 1 {
		return fmt.Errorf("invalid MAX_TEXT_FIELD_LENGTH: must be positive, got: %d", cfg.MaxTextFieldLength)
	}

	return nil
}

func validateArtifacts(cfg *Config) error {
	for name, file := range map[string]string{
		"VECTORIZER_FILE":        cfg.VectorizerFile,
		"RATING_MODEL_FILE":      cfg.RatingModelFile,
		"SIDE_EFFECT_MODEL_FILE": cfg.SideEffectModelFile,
	} {
		if strings.TrimSpace(file) == "" {
			return fmt.Errorf("invalid %s: cannot be empty", name)
		}
	}

	switch cfg.ArtifactSource {
	case SourceFile:
		if cfg.ArtifactDir == "" {
			return fmt.Errorf("invalid ARTIFACT_DIR: cannot be empty")
		}
	case SourceMinIO:
		if cfg.MinIOEndpoint == "" {
			return fmt.Errorf("invalid MINIO_ENDPOINT: cannot be empty when ARTIFACT_SOURCE=minio")
		}
		if cfg.MinIOBucket == "" {
			return fmt.Errorf("invalid MINIO_BUCKET: cannot be empty when ARTIFACT_SOURCE=minio")
		}
		if cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when ARTIFACT_SOURCE=minio")
		}
	default:
		return fmt.Errorf("invalid ARTIFACT_SOURCE: must be %q or %q, got: %q", SourceFile, SourceMinIO, cfg.ArtifactSource)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1024 and 65535, got: %d", portNum)
	}

	return nil
}

// validateAddress accepts loopback and private addresses only
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

func validateOneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %v, got: %s", allowed, value)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64) error {
	if size <= 0 {
		return fmt.Errorf("must be positive, got: %d", size)
	}

	if size > 100*1024*1024 {
		return fmt.Errorf("too large (max 100MB), got: %d bytes", size)
	}

	return nil
}
