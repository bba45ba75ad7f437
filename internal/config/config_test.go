package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.BaseURL)
	assert.Equal(t, 100*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, time.Second, cfg.Telegram.PollDelay)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "whisper-1", cfg.OpenAI.TranscribeModel)
	assert.InDelta(t, 0.5, cfg.OpenAI.Temperature, 1e-9)
	assert.Equal(t, 20, cfg.OpenAI.MaxHistory)
	assert.Equal(t, "temp", cfg.Bot.TempDir)
	assert.Equal(t, "wardrobe.json", cfg.Storage.WardrobeFile)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ADMIN_USER_ID", "777")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("STYLEBOT_POLL_TIMEOUT", "30s")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "tg-token", cfg.Telegram.Token)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, int64(777), cfg.Bot.AdminUserID)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoadFrom_YAML(t *testing.T) {
	path := writeTempConfig(t, `
openai:
  model: gpt-4.1
  temperature: 0.2
storage:
  data_dir: /var/lib/stylebot
  wardrobe_file: clothes.json
log:
  format: json
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", cfg.OpenAI.Model)
	assert.InDelta(t, 0.2, cfg.OpenAI.Temperature, 1e-9)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, filepath.Join("/var/lib/stylebot", "clothes.json"), cfg.WardrobePath())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestValidate(t *testing.T) {
	base, err := LoadFrom("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"temperature too high", func(c *Config) { c.OpenAI.Temperature = 3 }, "openai.temperature"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"server without token", func(c *Config) { c.Server.Enabled = true }, "server.token"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad base url", func(c *Config) { c.Telegram.BaseURL = "not a url" }, "telegram.base_url"},
		{"negative admin", func(c *Config) { c.Bot.AdminUserID = -1 }, "bot.admin_user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireCredentials_ListsMissing(t *testing.T) {
	err := Config{}.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestShowAll_RedactsSecrets(t *testing.T) {
	cfg := Config{}
	cfg.Telegram.Token = "123:secret"
	cfg.OpenAI.Model = "gpt-4o"

	for _, ki := range ShowAll(cfg) {
		switch ki.Key {
		case "telegram.token":
			assert.Equal(t, redacted, ki.Value)
		case "openai.api_key":
			assert.Empty(t, ki.Value)
		case "openai.model":
			assert.Equal(t, "gpt-4o", ki.Value)
		}
		assert.False(t, strings.Contains(ki.Value, "secret"), "secret leaked in %s", ki.Key)
	}
	assert.Len(t, ValidKeys(), len(specs))
}
