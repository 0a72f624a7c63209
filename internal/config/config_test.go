package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymeter/keymeter/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: "9090"
  environment: production
  log_level: warn
  allowed_origins: "https://app.example.com"
auth:
  provider: jwt
  jwt:
    secret: super-secret
database:
  type: sqlite
  file_path: /tmp/keymeter.db
cache:
  redis_url: redis://localhost:6379/0
metering:
  default_usage_limit: 250
  sweep_interval_minutes: 30
`)

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.Server.Port)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, "warn", cfg.GetNormalizedLogLevel())
		assert.Equal(t, models.AuthProviderJWT, cfg.Auth.Provider)
		assert.Equal(t, "super-secret", cfg.Auth.JWT.Secret)
		assert.Equal(t, models.SQLite, cfg.Database.Type)
		require.NotNil(t, cfg.Cache)
		assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
		assert.EqualValues(t, 250, cfg.Metering.DefaultUsageLimit)
		assert.Equal(t, 30, cfg.Metering.SweepIntervalMinutes)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("env substitution", func(t *testing.T) {
		t.Setenv("KEYMETER_TEST_PORT", "7070")
		os.Unsetenv("KEYMETER_TEST_SECRET")

		path := writeConfig(t, `
server:
  port: "${KEYMETER_TEST_PORT}"
auth:
  provider: jwt
  jwt:
    secret: "${KEYMETER_TEST_SECRET:-fallback-secret}"
database:
  type: sqlite
  file_path: ":memory:"
`)

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "7070", cfg.Server.Port)
		assert.Equal(t, "fallback-secret", cfg.Auth.JWT.Secret)
	})

	t.Run("rejects non-yaml extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

		_, err := LoadFromFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   models.ServerConfig{Port: "8080"},
			Auth:     models.AuthConfig{Provider: models.AuthProviderJWT, JWT: &models.JWTAuthConfig{Secret: "s"}},
			Database: models.DatabaseConfig{Type: models.SQLite},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing fields are listed", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.Validate()
		require.Error(t, err)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.MissingFields, "server.port")
		assert.Contains(t, vErr.MissingFields, "database.type")
		assert.Contains(t, vErr.MissingFields, "auth.provider")
	})

	t.Run("clerk provider needs a secret key", func(t *testing.T) {
		cfg := valid()
		cfg.Auth = models.AuthConfig{Provider: models.AuthProviderClerk}

		var vErr *ValidationError
		require.ErrorAs(t, cfg.Validate(), &vErr)
		assert.Contains(t, vErr.MissingFields, "auth.clerk.secret_key")
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.Provider = "saml"
		assert.Error(t, cfg.Validate())
	})
}
