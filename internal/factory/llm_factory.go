package factory

import (
	"fmt"

	"github.com/mikey/subscription-tracker/internal/adapters/bedrock"
	"github.com/mikey/subscription-tracker/internal/adapters/gemini"
	"github.com/mikey/subscription-tracker/internal/adapters/huggingface"
	"github.com/mikey/subscription-tracker/internal/adapters/openai"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates model backends
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateModelBackend creates a new model backend based on the configuration
func (f *LLMFactory) CreateModelBackend() (core.ModelBackend, error) {
	llmConfig := f.cfg.GetLLM()

	var (
		backend core.ModelBackend
		err     error
	)
	switch llmConfig.Provider {
	case "huggingface":
		backend, err = huggingface.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	case "bedrock":
		backend, err = bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	case "gemini":
		backend, err = gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	case "openai":
		backend, err = openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", llmConfig.Provider, err)
	}

	f.logger.Info("Model backend ready", zap.String("backend", backend.Name()))
	return backend, nil
}
