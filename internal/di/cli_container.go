package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/logging"
)

// CLIFlags contains all command line flags for the scanner
type CLIFlags struct {
	// Input flags
	Dir      string
	MaxTotal int
	UserID   string

	// Persistence flags
	StoreType string
	DBPath    string

	// LLM provider flags
	Provider       string
	HFAPIKey       string
	OpenAIAPIKey   string
	GeminiAPIKey   string
	BedrockRegion  string
	BedrockModelID string
	Threshold      float64
	Analysis       bool

	// Output flags
	ShowAll    bool
	JSONOutput bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Input flags
	flag.StringVar(&flags.Dir, "dir", "./mail", "Directory of .eml files to scan")
	flag.IntVar(&flags.MaxTotal, "max", 1000, "Maximum number of emails to read")
	flag.StringVar(&flags.UserID, "user", "local", "User ID the ledger rows belong to")

	// Persistence flags
	flag.StringVar(&flags.StoreType, "store", "memory", "Store type (memory, sqlite)")
	flag.StringVar(&flags.DBPath, "db", "./subscriptions.db", "SQLite database path when -store=sqlite")

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "huggingface", "Model provider (huggingface, openai, gemini, bedrock)")
	flag.StringVar(&flags.HFAPIKey, "hf-api-key", "", "API key for the HuggingFace inference API")
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")
	flag.Float64Var(&flags.Threshold, "threshold", 0.75, "Confidence threshold for lifecycle events")
	flag.BoolVar(&flags.Analysis, "analysis", false, "Ask the generation model for a structured analysis when zero-shot fails")

	// Output flags
	flag.BoolVar(&flags.ShowAll, "all", false, "Show cancelled subscriptions too")
	flag.BoolVar(&flags.JSONOutput, "json", false, "Print the subscription list as JSON")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the scanner
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", flags.ConfigFile))
			// The scanner always reads a directory
			v := cfg.GetViper()
			v.Set("mailbox.type", "eml_dir")
			v.Set("mailbox.eml_dir", flags.Dir)
			v.Set("smtp_spool.enabled", false)
			return cfg, nil
		}

		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set input
	v.Set("mailbox.type", "eml_dir")
	v.Set("mailbox.eml_dir", flags.Dir)
	v.Set("mailbox.max_total", flags.MaxTotal)
	v.Set("smtp_spool.enabled", false)

	// Set persistence
	v.Set("store.type", flags.StoreType)
	v.Set("store.sqlite_path", flags.DBPath)
	v.Set("cache.type", "memory")
	v.Set("cache.cleanup_frequency", "0s")

	// Set classifier
	v.Set("classifier.confidence_threshold", flags.Threshold)
	v.Set("classifier.llm_analysis_enabled", flags.Analysis)

	// Set LLM provider
	v.Set("llm.provider", flags.Provider)

	// Set provider-specific configuration
	switch flags.Provider {
	case "huggingface":
		v.Set("huggingface.api_key", flags.HFAPIKey)
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
	}

	return config.NewFromViper(v)
}
