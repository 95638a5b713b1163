package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

email:
  provider: resend
  from_email: "news@example.com"

resend:
  api_key: "re_test"

dispatch:
  mode: queue
  batch_size: 25
  stale_minutes: 5

scheduler:
  enabled: true
  hours: [6, 18]

news:
  feeds:
    crypto: ["https://example.com/crypto.xml"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "resend", cfg.Email.Provider)
	assert.Equal(t, "news@example.com", cfg.Email.FromEmail)
	assert.Equal(t, "re_test", cfg.Resend.APIKey)
	assert.Equal(t, "queue", cfg.Dispatch.Mode)
	assert.Equal(t, 25, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.StaleAge())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []int{6, 18}, cfg.Scheduler.Hours)
	assert.Equal(t, []string{"https://example.com/crypto.xml"}, cfg.News.Feeds["crypto"])
	// Topics without a configured feed fall back to the defaults.
	assert.Equal(t, DefaultFeeds["health"], cfg.News.Feeds["health"])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  base_url: https://newsly.app/\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ses", cfg.Email.Provider)
	assert.Equal(t, "bedrock", cfg.AI.Provider)
	assert.Equal(t, "direct", cfg.Dispatch.Mode)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, []int{7, 12, 17, 20}, cfg.Scheduler.Hours)
	assert.Equal(t, 30*time.Minute, cfg.News.CacheTTL())
	assert.Equal(t, "https://newsly.app", cfg.App.BaseURL)
	assert.Equal(t, "https://newsly.app", cfg.App.API())
	assert.True(t, cfg.Log.Redact())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
auth:
  cron_secret: "file-secret"
`)
	t.Setenv("CRON_SECRET", "env-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/newsly")
	t.Setenv("DISPATCH_MODE", "queue")
	t.Setenv("PORT", "7000")
	t.Setenv("REQUIRE_CRON_SECRET", "true")
	t.Setenv("LINK_SECRET", "link-secret")
	t.Setenv("APP_API_URL", "https://api.newsly.app/")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.CronSecret)
	assert.True(t, cfg.Auth.RequireCronSecret)
	assert.Equal(t, "postgres://localhost/newsly", cfg.Database.URL)
	assert.Equal(t, "queue", cfg.Dispatch.Mode)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "link-secret", cfg.Auth.LinkSecret)
	assert.Equal(t, "https://api.newsly.app", cfg.App.API())
}

func TestLoadFromEnvMissingFile(t *testing.T) {
	t.Setenv("AI_PROVIDER", "gemini")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
}

func TestLoadFromEnvRejectsBadMode(t *testing.T) {
	t.Setenv("DISPATCH_MODE", "carrier-pigeon")

	_, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidateHours(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Scheduler.Hours = []int{24}
	assert.Error(t, cfg.Validate())
}
