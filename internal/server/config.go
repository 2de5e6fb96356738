package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/pavel-fokin/media-drop/internal/files"
)

// Metadata backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

type Config struct {
	Port                   int      `env:"PORT" envDefault:"3000"`
	APIKey                 string   `env:"API_KEY,required"`
	DefaultExpiryMinutes   float64  `env:"DEFAULT_EXPIRY_MINUTES" envDefault:"180"`
	CleanupIntervalSeconds int      `env:"CLEANUP_INTERVAL_SECONDS" envDefault:"60"`
	UploadDir              string   `env:"UPLOAD_DIR" envDefault:"uploads"`
	MetadataBackend        string   `env:"METADATA_BACKEND" envDefault:"json"`
	MetadataPath           string   `env:"METADATA_PATH"`
	MaxUploadBytes         int64    `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	PublicURL              string   `env:"PUBLIC_URL"`
	PublicDir              string   `env:"PUBLIC_DIR"`
	CORSOrigins            []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses the environment and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that env tags cannot express.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT: %d is out of range", c.Port)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("API_KEY: must not be empty")
	}
	if !files.ValidExpiry(c.DefaultExpiryMinutes) {
		return fmt.Errorf("DEFAULT_EXPIRY_MINUTES: %v is not a positive number", c.DefaultExpiryMinutes)
	}
	if c.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_SECONDS: must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES: must be positive")
	}
	switch c.MetadataBackend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("METADATA_BACKEND: unknown backend %q, expected %s or %s",
			c.MetadataBackend, BackendJSON, BackendSQLite)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// MetadataFile is MetadataPath, or the backend's default location when unset.
func (c *Config) MetadataFile() string {
	if c.MetadataPath != "" {
		return c.MetadataPath
	}
	if c.MetadataBackend == BackendSQLite {
		return "data/files.db"
	}
	return "data/files.json"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CleanupInterval is the sweep interval.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

func parseLogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return lvl, nil
}
