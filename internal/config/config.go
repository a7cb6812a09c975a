package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Batch    BatchConfig    `mapstructure:"batch" validate:"required"`
	Settings SettingsConfig `mapstructure:"settings" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
	MaxUploadMB            int    `mapstructure:"max_upload_mb" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	// GeminiAPIKey may be empty; jobs then fail individually with a
	// missing-credential error instead of the server refusing to start.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	// ModelName is the model used when the user has not chosen one.
	ModelName string `mapstructure:"model_name" validate:"required"`

	// PromptTemplatePath overrides the embedded prompt template when set.
	PromptTemplatePath string `mapstructure:"prompt_template_path"`

	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"gte=1"`
	Temperature       float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// BatchConfig contains defaults for batch runs.
type BatchConfig struct {
	// MaxConcurrency is the concurrency limit used until the user saves one.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gte=1,lte=10"`

	// JobTimeout bounds a single generator call. Zero disables the bound.
	JobTimeout time.Duration `mapstructure:"job_timeout" validate:"gte=0"`
}

// SettingsConfig selects and configures the user settings backend.
type SettingsConfig struct {
	Backend                 string `mapstructure:"backend" validate:"required,oneof=memory postgres redis"`
	DatabaseURL             string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
	RedisURL                string `mapstructure:"redis_url" validate:"required_if=Backend redis"`
	DefaultArtist           string `mapstructure:"default_artist"`
	DefaultNegativeKeywords string `mapstructure:"default_negative_keywords"`
}

// AuthConfig contains API token settings. Authentication is disabled when
// JWTSecret is empty.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gte=1"`
}

// Enabled reports whether API requests must carry a bearer token.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}
