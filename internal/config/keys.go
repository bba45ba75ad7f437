package config

type keySpec struct {
	key     string
	env     string
	secret  bool
	extract func(cfg Config) any
}

var specs = []keySpec{
	{key: "telegram.token", env: "TELEGRAM_BOT_TOKEN", secret: true,
		extract: func(cfg Config) any { return cfg.Telegram.Token }},
	{key: "telegram.base_url", env: "STYLEBOT_TELEGRAM_BASE_URL",
		extract: func(cfg Config) any { return cfg.Telegram.BaseURL }},
	{key: "telegram.poll_timeout", env: "STYLEBOT_POLL_TIMEOUT",
		extract: func(cfg Config) any { return cfg.Telegram.PollTimeout.String() }},
	{key: "telegram.poll_delay", env: "STYLEBOT_POLL_DELAY",
		extract: func(cfg Config) any { return cfg.Telegram.PollDelay.String() }},
	{key: "openai.api_key", env: "OPENAI_API_KEY", secret: true,
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey }},
	{key: "openai.base_url", env: "OPENAI_BASE_URL",
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL }},
	{key: "openai.model", env: "OPENAI_MODEL",
		extract: func(cfg Config) any { return cfg.OpenAI.Model }},
	{key: "openai.transcribe_model", env: "OPENAI_TRANSCRIBE_MODEL",
		extract: func(cfg Config) any { return cfg.OpenAI.TranscribeModel }},
	{key: "openai.temperature", env: "OPENAI_TEMPERATURE",
		extract: func(cfg Config) any { return cfg.OpenAI.Temperature }},
	{key: "openai.system_prompt", env: "SYSTEM_PROMPT",
		extract: func(cfg Config) any { return cfg.OpenAI.SystemPrompt }},
	{key: "openai.max_history", env: "STYLEBOT_MAX_HISTORY",
		extract: func(cfg Config) any { return cfg.OpenAI.MaxHistory }},
	{key: "openai.timeout", env: "OPENAI_TIMEOUT",
		extract: func(cfg Config) any { return cfg.OpenAI.Timeout.String() }},
	{key: "bot.admin_user_id", env: "ADMIN_USER_ID",
		extract: func(cfg Config) any { return cfg.Bot.AdminUserID }},
	{key: "bot.temp_dir", env: "STYLEBOT_TEMP_DIR",
		extract: func(cfg Config) any { return cfg.Bot.TempDir }},
	{key: "storage.data_dir", env: "STYLEBOT_DATA_DIR",
		extract: func(cfg Config) any { return cfg.Storage.DataDir }},
	{key: "storage.wardrobe_file", env: "STYLEBOT_WARDROBE_FILE",
		extract: func(cfg Config) any { return cfg.Storage.WardrobeFile }},
	{key: "server.enabled", env: "STYLEBOT_SERVER_ENABLED",
		extract: func(cfg Config) any { return cfg.Server.Enabled }},
	{key: "server.host", env: "STYLEBOT_SERVER_HOST",
		extract: func(cfg Config) any { return cfg.Server.Host }},
	{key: "server.port", env: "STYLEBOT_SERVER_PORT",
		extract: func(cfg Config) any { return cfg.Server.Port }},
	{key: "server.token", env: "STYLEBOT_API_TOKEN", secret: true,
		extract: func(cfg Config) any { return cfg.Server.Token }},
	{key: "log.level", env: "STYLEBOT_LOG_LEVEL",
		extract: func(cfg Config) any { return cfg.Log.Level }},
	{key: "log.format", env: "STYLEBOT_LOG_FORMAT",
		extract: func(cfg Config) any { return cfg.Log.Format }},
}
