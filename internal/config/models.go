package config

import "time"

// ClassifierConfig represents the configuration of the lifecycle classifier
type ClassifierConfig struct {
	ConfidenceThreshold float64
	Concurrency         int
	MaxContentChars     int
	RequestTimeout      time.Duration
	RequestsPerSecond   float64
	Burst               int
	FallbackConfidence  float64
	LLMAnalysisEnabled  bool
	InactivityThreshold time.Duration
	MinRejectionVotes   int
}

// PatternsConfig represents the configuration of the pattern store
type PatternsConfig struct {
	SeedOnStart   bool
	GenericTokens []string
}

// FeedbackConfig represents the configuration of the feedback loop
type FeedbackConfig struct {
	MinVotes      int
	Supermajority float64
	Interval      time.Duration
	InitialDelay  time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// HuggingFaceConfig represents the configuration for the HuggingFace inference API
type HuggingFaceConfig struct {
	APIKey          string
	BaseURL         string
	ZeroShotModel   string
	GenerationModel string
	MaxNewTokens    int
	Temperature     float32
	MaxBodySize     int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// StoreConfig represents the configuration of the persistence layer
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// CacheConfig represents the configuration of the classification cache
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// MailboxConfig represents the configuration of the mailbox source
type MailboxConfig struct {
	Type     string
	MaxTotal int
	EmlDir   string
}

// IMAPConfig represents the configuration of the IMAP mailbox
type IMAPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	Folder   string
}

// SMTPSpoolConfig represents the configuration of the SMTP receipt spool
type SMTPSpoolConfig struct {
	Enabled         bool
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	MaxQueued       int
}

// ServerConfig represents the configuration of the HTTP API
type ServerConfig struct {
	ListenAddress string
	DefaultUserID string
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() (ClassifierConfig, error) {
	timeout, err := c.GetDuration("classifier.request_timeout")
	if err != nil {
		return ClassifierConfig{}, err
	}
	inactivity, err := c.GetDuration("classifier.inactivity_threshold")
	if err != nil {
		return ClassifierConfig{}, err
	}
	return ClassifierConfig{
		ConfidenceThreshold: c.GetFloat64("classifier.confidence_threshold"),
		Concurrency:         c.GetInt("classifier.concurrency"),
		MaxContentChars:     c.GetInt("classifier.max_content_chars"),
		RequestTimeout:      timeout,
		RequestsPerSecond:   c.GetFloat64("classifier.requests_per_second"),
		Burst:               c.GetInt("classifier.burst"),
		FallbackConfidence:  c.GetFloat64("classifier.fallback_confidence"),
		LLMAnalysisEnabled:  c.GetBool("classifier.llm_analysis_enabled"),
		InactivityThreshold: inactivity,
		MinRejectionVotes:   c.GetInt("patterns.min_rejection_votes"),
	}, nil
}

// GetPatterns returns the pattern store configuration
func (c *Config) GetPatterns() PatternsConfig {
	return PatternsConfig{
		SeedOnStart:   c.GetBool("patterns.seed_on_start"),
		GenericTokens: c.GetStringSlice("patterns.generic_tokens"),
	}
}

// GetFeedback returns the feedback loop configuration
func (c *Config) GetFeedback() (FeedbackConfig, error) {
	interval, err := c.GetDuration("feedback.interval")
	if err != nil {
		return FeedbackConfig{}, err
	}
	initialDelay, err := c.GetDuration("feedback.initial_delay")
	if err != nil {
		return FeedbackConfig{}, err
	}
	retryInterval, err := c.GetDuration("feedback.retry_interval")
	if err != nil {
		return FeedbackConfig{}, err
	}
	return FeedbackConfig{
		MinVotes:      c.GetInt("feedback.min_votes"),
		Supermajority: c.GetFloat64("feedback.supermajority"),
		Interval:      interval,
		InitialDelay:  initialDelay,
		MaxRetries:    c.GetInt("feedback.max_retries"),
		RetryInterval: retryInterval,
	}, nil
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetHuggingFace returns the HuggingFace configuration
func (c *Config) GetHuggingFace() HuggingFaceConfig {
	return HuggingFaceConfig{
		APIKey:          c.GetString("huggingface.api_key"),
		BaseURL:         c.GetString("huggingface.base_url"),
		ZeroShotModel:   c.GetString("huggingface.zero_shot_model"),
		GenerationModel: c.GetString("huggingface.generation_model"),
		MaxNewTokens:    c.GetInt("huggingface.max_new_tokens"),
		Temperature:     float32(c.GetFloat64("huggingface.temperature")),
		MaxBodySize:     c.GetInt("huggingface.max_body_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetStore returns the persistence configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetCache returns the classification cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisAddr:        c.GetString("cache.redis_addr"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
	}, nil
}

// GetMailbox returns the mailbox configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		Type:     c.GetString("mailbox.type"),
		MaxTotal: c.GetInt("mailbox.max_total"),
		EmlDir:   c.GetString("mailbox.eml_dir"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Server:   c.GetString("imap.server"),
		Port:     c.GetInt("imap.port"),
		Username: c.GetString("imap.username"),
		Password: c.GetString("imap.password"),
		Folder:   c.GetString("imap.folder"),
	}
}

// GetSMTPSpool returns the SMTP spool configuration
func (c *Config) GetSMTPSpool() SMTPSpoolConfig {
	return SMTPSpoolConfig{
		Enabled:         c.GetBool("smtp_spool.enabled"),
		ListenAddress:   c.GetString("smtp_spool.listen_address"),
		Domain:          c.GetString("smtp_spool.domain"),
		MaxMessageBytes: int64(c.GetInt("smtp_spool.max_message_bytes")),
		MaxQueued:       c.GetInt("smtp_spool.max_queued"),
	}
}

// GetServer returns the HTTP API configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		DefaultUserID: c.GetString("server.default_user_id"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:      c.GetString("logging.level"),
		Format:     c.GetString("logging.format"),
		File:       c.GetString("logging.file"),
		MaxSize:    c.GetInt("logging.max_size"),
		MaxBackups: c.GetInt("logging.max_backups"),
		MaxAge:     c.GetInt("logging.max_age"),
		Compress:   c.GetBool("logging.compress"),
	}
}
