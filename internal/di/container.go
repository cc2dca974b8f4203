package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/adapters/smtpd"
	"github.com/mikey/subscription-sentry/internal/config"
	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/extract"
	"github.com/mikey/subscription-sentry/internal/factory"
	"github.com/mikey/subscription-sentry/internal/logging"
	"github.com/mikey/subscription-sentry/internal/policy"
	"github.com/mikey/subscription-sentry/internal/registry"
	"github.com/mikey/subscription-sentry/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
// for the ingest server
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(config.New); err != nil {
		return nil, err
	}
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewModelFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}

	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Merchant registry, extended with any configured extra merchants
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *registry.Registry {
		extra := cfg.GetPipeline().ExtraMerchants
		if len(extra) == 0 {
			return registry.New(logger)
		}
		names := append(registry.New(logger).Names(), extra...)
		logger.Info("Extending merchant registry", zap.Strings("extra", extra))
		return registry.NewWithNames(names, logger)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(f *factory.ModelFactory) (core.ModelClient, error) {
		return f.CreateModelClient()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (core.ResultStore, error) {
		return f.CreateResultStore()
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(logger *zap.Logger) core.Gate {
		return extract.NewPrefilter(logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(reg *registry.Registry, logger *zap.Logger) core.Extractor {
		return extract.NewRuleBasedExtractor(reg, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, reg *registry.Registry) core.DecisionPolicy {
		return policy.New(reg, cfg.GetPipeline().MinConfidence)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(
		cfg *config.Config,
		gate core.Gate,
		model core.ModelClient,
		rules core.Extractor,
		decisionPolicy core.DecisionPolicy,
		resultStore core.ResultStore,
		reg *registry.Registry,
		logger *zap.Logger,
	) *core.ExtractionService {
		timeout, err := cfg.GetDuration("model.timeout")
		if err != nil {
			timeout = 0
		}
		return core.NewExtractionService(gate, model, rules, decisionPolicy, resultStore, reg, logger, timeout)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(
		cfg *config.Config,
		service *core.ExtractionService,
		logger *zap.Logger,
	) *smtpd.Listener {
		return smtpd.NewListener(
			service,
			logger,
			cfg.GetString("server.listen_address"),
			cfg.GetString("server.relay_address"),
			cfg.GetInt("server.relay_port"),
			cfg.GetString("server.headers.status"),
			cfg.GetString("server.headers.service"),
			cfg.GetString("server.headers.confidence"),
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
