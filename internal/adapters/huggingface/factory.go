package huggingface

import (
	"net/http"

	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/utils"
	"go.uber.org/zap"
)

// Factory creates HuggingFace clients
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new HuggingFace factory
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClient creates a new HuggingFace client
func (f *Factory) CreateClient() (*Client, error) {
	hfCfg := f.cfg.GetHuggingFace()
	if hfCfg.APIKey == "" {
		f.logger.Warn("HuggingFace API key is empty, requests will be anonymous")
	}

	return NewClient(
		&http.Client{},
		hfCfg.BaseURL,
		hfCfg.APIKey,
		hfCfg.ZeroShotModel,
		hfCfg.GenerationModel,
		hfCfg.MaxNewTokens,
		hfCfg.Temperature,
		hfCfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}
