package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/adapters/httpapi"
	"github.com/mikey/subscription-tracker/internal/adapters/mailbox"
	"github.com/mikey/subscription-tracker/internal/blocklist"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/factory"
	"github.com/mikey/subscription-tracker/internal/logging"
	"github.com/mikey/subscription-tracker/internal/monitoring"
	"github.com/mikey/subscription-tracker/internal/utils"
	"github.com/mikey/subscription-tracker/internal/worker"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}

	// Register feedback scheduler
	if err := container.Provide(func(
		cfg *config.Config,
		processor *core.FeedbackProcessor,
		logger *zap.Logger,
	) (*worker.FeedbackScheduler, error) {
		fbCfg, err := cfg.GetFeedback()
		if err != nil {
			return nil, err
		}
		return worker.NewFeedbackScheduler(
			processor,
			logger,
			fbCfg.InitialDelay,
			fbCfg.Interval,
			fbCfg.MaxRetries,
			fbCfg.RetryInterval,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register HTTP API
	if err := container.Provide(func(
		cfg *config.Config,
		refresh *core.RefreshService,
		processor *core.FeedbackProcessor,
		store core.Store,
		metrics *monitoring.Metrics,
		logger *zap.Logger,
	) *httpapi.Server {
		serverCfg := cfg.GetServer()
		return httpapi.NewServer(
			serverCfg.ListenAddress,
			serverCfg.DefaultUserID,
			refresh,
			processor,
			store,
			metrics,
			logger,
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideServices registers everything between configuration and the outer
// surfaces. Both the daemon and the CLI use it.
func provideServices(container *dig.Container) error {
	// Register metrics
	if err := container.Provide(monitoring.NewMetrics); err != nil {
		return err
	}
	if err := container.Provide(func(m *monitoring.Metrics) core.Recorder {
		return m
	}); err != nil {
		return err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewMailboxFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register model backend
	if err := container.Provide(func(f *factory.LLMFactory) (core.ModelBackend, error) {
		return f.CreateModelBackend()
	}); err != nil {
		return err
	}

	// Register classification cache, nil when disabled
	if err := container.Provide(func(f *factory.CacheFactory) (core.ScoreCache, error) {
		return f.CreateScoreCache()
	}); err != nil {
		return err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (core.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	// Register mailbox sources
	if err := container.Provide(func(f *factory.MailboxFactory) *mailbox.SMTPSpool {
		return f.CreateSpool()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.MailboxFactory, spool *mailbox.SMTPSpool) (core.Mailbox, error) {
		return f.CreateMailbox(spool)
	}); err != nil {
		return err
	}

	// Register classifier configuration
	if err := container.Provide(func(cfg *config.Config) (config.ClassifierConfig, error) {
		return cfg.GetClassifier()
	}); err != nil {
		return err
	}

	// Register generic-token blocklist
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *blocklist.Checker {
		return blocklist.NewChecker(cfg.GetPatterns().GenericTokens, logger)
	}); err != nil {
		return err
	}

	// Register pattern matcher and service identifier
	if err := container.Provide(core.NewPatternMatcher); err != nil {
		return err
	}
	if err := container.Provide(func(
		store core.Store,
		matcher *core.PatternMatcher,
		generic *blocklist.Checker,
		logger *zap.Logger,
	) *core.ServiceIdentifier {
		return core.NewServiceIdentifier(store, matcher, generic, logger)
	}); err != nil {
		return err
	}

	// Register text classifier adapter
	if err := container.Provide(func(
		cfg *config.Config,
		cc config.ClassifierConfig,
		backend core.ModelBackend,
		cache core.ScoreCache,
		logger *zap.Logger,
	) (*core.TextClassifierAdapter, error) {
		cacheCfg, err := cfg.GetCache()
		if err != nil {
			return nil, err
		}
		return core.NewTextClassifierAdapter(backend, cache, core.AdapterOptions{
			Timeout:           cc.RequestTimeout,
			RequestsPerSecond: cc.RequestsPerSecond,
			Burst:             cc.Burst,
			CacheEnabled:      cache != nil,
			CacheTTL:          cacheCfg.TTL,
		}, logger), nil
	}); err != nil {
		return err
	}

	// Register lifecycle classifier
	if err := container.Provide(func(
		store core.Store,
		identifier *core.ServiceIdentifier,
		adapter *core.TextClassifierAdapter,
		matcher *core.PatternMatcher,
		recorder core.Recorder,
		cc config.ClassifierConfig,
		logger *zap.Logger,
	) *core.LifecycleClassifier {
		return core.NewLifecycleClassifier(store, identifier, adapter, matcher, recorder, logger, core.ClassifierOptions{
			ConfidenceThreshold: cc.ConfidenceThreshold,
			Concurrency:         cc.Concurrency,
			MaxContentChars:     cc.MaxContentChars,
			MinRejectionVotes:   cc.MinRejectionVotes,
			FallbackConfidence:  cc.FallbackConfidence,
			LLMAnalysisEnabled:  cc.LLMAnalysisEnabled,
		})
	}); err != nil {
		return err
	}

	// Register feedback processor
	if err := container.Provide(func(
		cfg *config.Config,
		store core.Store,
		recorder core.Recorder,
		logger *zap.Logger,
	) (*core.FeedbackProcessor, error) {
		fbCfg, err := cfg.GetFeedback()
		if err != nil {
			return nil, err
		}
		return core.NewFeedbackProcessor(store, recorder, logger, core.FeedbackOptions{
			MinVotes:      fbCfg.MinVotes,
			Supermajority: fbCfg.Supermajority,
		}), nil
	}); err != nil {
		return err
	}

	// Register pattern seeder
	if err := container.Provide(core.NewPatternSeeder); err != nil {
		return err
	}

	// Register refresh service
	if err := container.Provide(func(
		cfg *config.Config,
		cc config.ClassifierConfig,
		mb core.Mailbox,
		classifier *core.LifecycleClassifier,
		processor *core.FeedbackProcessor,
		store core.Store,
		logger *zap.Logger,
	) *core.RefreshService {
		return core.NewRefreshService(
			mb,
			classifier,
			processor,
			store,
			logger,
			cfg.GetMailbox().MaxTotal,
			cc.InactivityThreshold,
		)
	}); err != nil {
		return err
	}

	return nil
}
