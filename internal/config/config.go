// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env
// struct tags. Validates required fields and encryption key format.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	IdentityAPIURL     string        `env:"IDENTITY_API_URL"`
	SessionFile        string        `env:"SESSION_FILE"`
	TokenEncryptionKey string        `env:"TOKEN_ENCRYPTION_KEY"`
	RedisURL           string        `env:"REDIS_URL"`
	RenewThreshold     time.Duration `env:"RENEW_THRESHOLD" default:"5m"`
	CheckInterval      time.Duration `env:"CHECK_INTERVAL" default:"2m"`
	LogLevel           string        `env:"LOG_LEVEL" default:"info"`
	LogFormat          string        `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.SessionFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("SESSION_FILE not set and home directory unavailable: %w", err)
		}
		cfg.SessionFile = filepath.Join(home, ".sessionkeeper", "session.json")
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.IdentityAPIURL == "" {
		return fmt.Errorf("IDENTITY_API_URL is required")
	}

	if cfg.RenewThreshold <= 0 {
		return fmt.Errorf("RENEW_THRESHOLD must be positive")
	}
	if cfg.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
