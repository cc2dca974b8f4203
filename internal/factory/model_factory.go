package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/adapters/bedrock"
	"github.com/mikey/subscription-sentry/internal/adapters/gemini"
	"github.com/mikey/subscription-sentry/internal/adapters/openai"
	"github.com/mikey/subscription-sentry/internal/config"
	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/utils"
)

// ModelFactory creates model extraction clients
type ModelFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewModelFactory creates a new model factory
func NewModelFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ModelFactory {
	return &ModelFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateModelClient creates a model client based on the configuration.
// A disabled model backend returns (nil, nil): the pipeline then runs
// rule-based extraction only.
func (f *ModelFactory) CreateModelClient() (core.ModelClient, error) {
	modelCfg := f.cfg.GetModel()
	if !modelCfg.Enabled {
		return nil, nil
	}

	switch modelCfg.Provider {
	case "openai":
		return openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateModelClient()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateModelClient()
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateModelClient()
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", modelCfg.Provider)
	}
}
