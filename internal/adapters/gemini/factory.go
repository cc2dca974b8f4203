package gemini

import (
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/config"
	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/utils"
)

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateModelClient creates a new GeminiClient
func (f *Factory) CreateModelClient() (core.ModelClient, error) {
	geminiCfg := f.cfg.GetGemini()
	return NewGeminiClient(
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		geminiCfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	)
}
