package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	// HTTP server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// LLM settings
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Storage
	DatabasePath     string `env:"DATABASE_PATH" envDefault:"data/compliance.db"`
	AuditLogFilePath string `env:"AUDIT_LOG_FILE_PATH" envDefault:"logs/interactions.jsonl"`

	// Background jobs
	SnapshotCronEnabled bool `env:"SNAPSHOT_CRON_ENABLED" envDefault:"true"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
