package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Web client
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	GatewayURL     string        `env:"GATEWAY_URL" envDefault:"http://localhost:8081/chat"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"0s"`
	SubmitMode     string        `env:"SUBMIT_MODE" envDefault:"concurrent"`

	// Sessions unused for SessionMaxIdle are dropped on SessionPruneSchedule
	SessionMaxIdle       time.Duration `env:"SESSION_MAX_IDLE" envDefault:"24h"`
	SessionPruneSchedule string        `env:"SESSION_PRUNE_SCHEDULE" envDefault:"@every 10m"`

	// Panel defaults for new sessions
	DefaultModel       string  `env:"DEFAULT_MODEL" envDefault:"chatgpt"`
	DefaultTemperature float64 `env:"DEFAULT_TEMPERATURE" envDefault:"1.0"`
	DefaultAPIKey      string  `env:"DEFAULT_API_KEY"`

	// Storage
	LogFilePath    string `env:"LOG_FILE_PATH" envDefault:"logs/transcript.jsonl"`
	ExportDir      string `env:"EXPORT_DIR" envDefault:"data/exports"`
	ExportSchedule string `env:"EXPORT_SCHEDULE"`

	// Telegram front-end
	TelegramBotToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers      []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID       int64   `env:"ADMIN_USER"`
	AllowlistFilePath string  `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`
	PendingFilePath   string  `env:"PENDING_FILE_PATH" envDefault:"data/pending.json"`

	// Reference backend
	ProxyListenAddr    string      `env:"PROXY_LISTEN_ADDR" envDefault:":8081"`
	LLMProvider        LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey       string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string      `env:"OPENAI_BASE_URL"`
	OpenRouterReferrer string      `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string      `env:"OPENROUTER_TITLE"`
	YandexOAuthToken   string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID     string      `env:"YANDEX_FOLDER_ID"`
	ProxyLogFilePath   string      `env:"PROXY_LOG_FILE_PATH" envDefault:"logs/proxy.jsonl"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.LLMProvider {
	case ProviderOpenAI, ProviderYandex:
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
	if cfg.GatewayTimeout < 0 {
		return nil, fmt.Errorf("GATEWAY_TIMEOUT must not be negative")
	}
	if cfg.SessionMaxIdle < 0 {
		return nil, fmt.Errorf("SESSION_MAX_IDLE must not be negative")
	}
	return cfg, nil
}
