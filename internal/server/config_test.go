package server

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("API_KEY", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 180.0, cfg.DefaultExpiryMinutes)
	assert.Equal(t, 60, cfg.CleanupIntervalSeconds)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, BackendJSON, cfg.MetadataBackend)
	assert.Empty(t, cfg.MetadataPath)
	assert.Equal(t, "data/files.json", cfg.MetadataFile())
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, time.Minute, cfg.CleanupInterval())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("DEFAULT_EXPIRY_MINUTES", "2.5")
	t.Setenv("CLEANUP_INTERVAL_SECONDS", "5")
	t.Setenv("METADATA_BACKEND", "sqlite")
	t.Setenv("METADATA_PATH", "data/files.db")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 2.5, cfg.DefaultExpiryMinutes)
	assert.Equal(t, 5*time.Second, cfg.CleanupInterval())
	assert.Equal(t, BackendSQLite, cfg.MetadataBackend)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestConfigMetadataFile(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("METADATA_BACKEND", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "data/files.db", cfg.MetadataFile())

	cfg.MetadataPath = "/var/lib/media-drop/meta.db"
	assert.Equal(t, "/var/lib/media-drop/meta.db", cfg.MetadataFile())

	cfg.MetadataBackend = BackendJSON
	cfg.MetadataPath = ""
	assert.Equal(t, "data/files.json", cfg.MetadataFile())
}

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"blank api key", func(c *Config) { c.APIKey = "  " }},
		{"zero expiry", func(c *Config) { c.DefaultExpiryMinutes = 0 }},
		{"negative interval", func(c *Config) { c.CleanupIntervalSeconds = -1 }},
		{"zero max upload", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"unknown backend", func(c *Config) { c.MetadataBackend = "redis" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			require.NoError(t, cfg.Validate())

			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	level, err = parseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
