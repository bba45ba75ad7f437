package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all stylebot configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Bot      BotConfig      `yaml:"bot"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type TelegramConfig struct {
	Token       string        `yaml:"token"        env:"TELEGRAM_BOT_TOKEN"`
	BaseURL     string        `yaml:"base_url"     env:"STYLEBOT_TELEGRAM_BASE_URL" env-default:"https://api.telegram.org"`
	PollTimeout time.Duration `yaml:"poll_timeout" env:"STYLEBOT_POLL_TIMEOUT"      env-default:"100s"`
	PollDelay   time.Duration `yaml:"poll_delay"   env:"STYLEBOT_POLL_DELAY"        env-default:"1s"`
}

type OpenAIConfig struct {
	APIKey          string        `yaml:"api_key"          env:"OPENAI_API_KEY"`
	BaseURL         string        `yaml:"base_url"         env:"OPENAI_BASE_URL"         env-default:"https://api.openai.com/v1"`
	Model           string        `yaml:"model"            env:"OPENAI_MODEL"            env-default:"gpt-4o"`
	TranscribeModel string        `yaml:"transcribe_model" env:"OPENAI_TRANSCRIBE_MODEL" env-default:"whisper-1"`
	Temperature     float64       `yaml:"temperature"      env:"OPENAI_TEMPERATURE"      env-default:"0.5"`
	SystemPrompt    string        `yaml:"system_prompt"    env:"SYSTEM_PROMPT"`
	MaxHistory      int           `yaml:"max_history"      env:"STYLEBOT_MAX_HISTORY"    env-default:"20"`
	Timeout         time.Duration `yaml:"timeout"          env:"OPENAI_TIMEOUT"          env-default:"120s"`
}

type BotConfig struct {
	// AdminUserID is the only Telegram user allowed to export logs. Zero disables export.
	AdminUserID int64  `yaml:"admin_user_id" env:"ADMIN_USER_ID"`
	TempDir     string `yaml:"temp_dir"      env:"STYLEBOT_TEMP_DIR" env-default:"temp"`
}

type StorageConfig struct {
	DataDir      string `yaml:"data_dir"      env:"STYLEBOT_DATA_DIR"      env-default:"."`
	WardrobeFile string `yaml:"wardrobe_file" env:"STYLEBOT_WARDROBE_FILE" env-default:"wardrobe.json"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" env:"STYLEBOT_SERVER_ENABLED" env-default:"false"`
	Host    string `yaml:"host"    env:"STYLEBOT_SERVER_HOST"    env-default:"127.0.0.1"`
	Port    int    `yaml:"port"    env:"STYLEBOT_SERVER_PORT"    env-default:"4000"`
	Token   string `yaml:"token"   env:"STYLEBOT_API_TOKEN"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"STYLEBOT_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"STYLEBOT_LOG_FORMAT" env-default:"text"`
}

// WardrobePath returns the location of the wardrobe JSON document.
func (c Config) WardrobePath() string {
	if filepath.IsAbs(c.Storage.WardrobeFile) {
		return c.Storage.WardrobeFile
	}
	return filepath.Join(c.Storage.DataDir, c.Storage.WardrobeFile)
}

// Validate checks value ranges and formats. Credentials are checked separately
// by RequireCredentials because offline commands do not need them.
func (c Config) Validate() error {
	var errs []error

	if _, err := url.ParseRequestURI(c.Telegram.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("telegram.base_url: %w", err))
	}
	if _, err := url.ParseRequestURI(c.OpenAI.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("openai.base_url: %w", err))
	}
	if c.Telegram.PollTimeout < 0 {
		errs = append(errs, errors.New("telegram.poll_timeout must not be negative"))
	}
	if c.Telegram.PollDelay < 0 {
		errs = append(errs, errors.New("telegram.poll_delay must not be negative"))
	}
	if c.OpenAI.Model == "" {
		errs = append(errs, errors.New("openai.model is required"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("openai.temperature must be within [0, 2], got %v", c.OpenAI.Temperature))
	}
	if c.OpenAI.MaxHistory < 0 {
		errs = append(errs, errors.New("openai.max_history must not be negative"))
	}
	if c.Bot.AdminUserID < 0 {
		errs = append(errs, errors.New("bot.admin_user_id must not be negative"))
	}
	if c.Storage.WardrobeFile == "" {
		errs = append(errs, errors.New("storage.wardrobe_file is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.Enabled && c.Server.Token == "" {
		errs = append(errs, errors.New("server.token is required when the admin API is enabled"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// RequireCredentials reports missing secrets needed to talk to Telegram and OpenAI.
func (c Config) RequireCredentials() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
