package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	// A .env file is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/subscription-tracker/")
	v.AddConfigPath("$HOME/.subscription-tracker")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("SUBTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromFile loads configuration from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("SUBTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Classifier defaults
	v.SetDefault("classifier.confidence_threshold", 0.75)
	v.SetDefault("classifier.concurrency", 4)
	v.SetDefault("classifier.max_content_chars", 500)
	v.SetDefault("classifier.request_timeout", "30s")
	v.SetDefault("classifier.requests_per_second", 5.0)
	v.SetDefault("classifier.burst", 5)
	v.SetDefault("classifier.fallback_confidence", 0.8)
	v.SetDefault("classifier.llm_analysis_enabled", false)
	v.SetDefault("classifier.inactivity_threshold", "2160h")

	// Pattern defaults
	v.SetDefault("patterns.min_rejection_votes", 3)
	v.SetDefault("patterns.seed_on_start", true)
	v.SetDefault("patterns.generic_tokens", []string{})

	// Feedback defaults
	v.SetDefault("feedback.min_votes", 3)
	v.SetDefault("feedback.supermajority", 0.67)
	v.SetDefault("feedback.interval", "24h")
	v.SetDefault("feedback.initial_delay", "15m")
	v.SetDefault("feedback.max_retries", 5)
	v.SetDefault("feedback.retry_interval", "30s")

	// LLM provider defaults
	v.SetDefault("llm.provider", "huggingface")

	// HuggingFace defaults
	v.SetDefault("huggingface.api_key", "")
	v.SetDefault("huggingface.base_url", "https://api-inference.huggingface.co/models")
	v.SetDefault("huggingface.zero_shot_model", "MoritzLaurer/mDeBERTa-v3-base-mnli-xnli")
	v.SetDefault("huggingface.generation_model", "mistralai/Mistral-7B-Instruct-v0.2")
	v.SetDefault("huggingface.max_new_tokens", 512)
	v.SetDefault("huggingface.temperature", 0.1)
	v.SetDefault("huggingface.max_body_size", 4096)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/subscriptions.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/subscriptions")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/classification_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/subscriptions")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	// Mailbox defaults
	v.SetDefault("mailbox.type", "eml_dir")
	v.SetDefault("mailbox.max_total", 1000)
	v.SetDefault("mailbox.eml_dir", "./mail")
	v.SetDefault("imap.server", "")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("smtp_spool.enabled", false)
	v.SetDefault("smtp_spool.listen_address", "0.0.0.0:10025")
	v.SetDefault("smtp_spool.domain", "localhost")
	v.SetDefault("smtp_spool.max_message_bytes", 10*1024*1024)
	v.SetDefault("smtp_spool.max_queued", 5000)

	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")
	v.SetDefault("server.default_user_id", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
