package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"NewsRelay/internal/breaker"
	"NewsRelay/internal/config"
	"NewsRelay/internal/dedup"
	"NewsRelay/internal/infrastructure/cache"
	"NewsRelay/internal/infrastructure/channels"
	"NewsRelay/internal/infrastructure/images"
	"NewsRelay/internal/infrastructure/llm"
	"NewsRelay/internal/infrastructure/metrics"
	"NewsRelay/internal/infrastructure/ml"
	"NewsRelay/internal/infrastructure/mt"
	"NewsRelay/internal/infrastructure/parser"
	"NewsRelay/internal/infrastructure/scheduler"
	"NewsRelay/internal/infrastructure/storage"
	"NewsRelay/internal/logging"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/publish"
	"NewsRelay/internal/quality"
	"NewsRelay/internal/ratelimit"
	"NewsRelay/internal/scanner"
	"NewsRelay/internal/scheduling"
	"NewsRelay/internal/translator"
	"NewsRelay/internal/usecase"
)

const translatorBreaker = "translator"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *storage.Store
	redis       *redis.Client
	metrics     *metrics.Collector
	pipeline    *usecase.Pipeline
	retries     *usecase.RetryWorker
	maintenance *usecase.Maintenance
}

// New opens the store, applies migrations and builds every component once.
func New(ctx context.Context, cfg config.Config, baseLogger *zap.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}

	migrated, err := storage.Migrate(cfg.Database)
	if err != nil {
		return nil, err
	}
	baseLogger.Info("database schema ready",
		zap.Uint("version", migrated.Version), zap.Bool("changed", migrated.Changed))

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, store: store, metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg := a.cfg
	collector := a.metrics

	var translations ports.TranslationCache = a.store
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.redis = client
		translations = cache.NewTiered(
			cache.NewRedisTranslations(client, cfg.Redis.TTL),
			a.store,
			logging.Component(a.logger, "cache"),
		)
	}

	br := breaker.New(breaker.Config{
		FailureThreshold: cfg.Translator.FailureThreshold,
		RecoveryTimeout:  cfg.Translator.RecoveryTimeout,
		OnStateChange: func(_, to breaker.State) {
			collector.SetBreakerState(translatorBreaker, int(to))
		},
	})
	collector.SetBreakerState(translatorBreaker, int(breaker.StateClosed))

	deps := translator.Deps{
		Cache:    translations,
		Breaker:  br,
		Recorder: collector,
		Logger:   logging.Component(a.logger, "translator"),
	}
	if cfg.LLM.APIKey != "" {
		deps.Renderer = llm.NewRenderer(cfg.LLM)
	}
	if cfg.MT.Endpoint != "" {
		deps.Fallback = mt.NewClient(cfg.MT)
	}
	tr := translator.New(deps, translator.Options{
		MinLengthRatio:   cfg.Translator.MinLengthRatio,
		VerbatimMaxRunes: cfg.Translator.VerbatimMaxRunes,
	})

	var classifier ports.QualityClassifier
	if cfg.ML.InferenceURL != "" {
		classifier = ml.NewClient(cfg.ML)
	}
	gate := quality.NewGate(quality.Options{
		Threshold:        cfg.Quality.Threshold,
		MinTitleLength:   cfg.Quality.MinTitleLength,
		MinSummaryLength: cfg.Quality.MinSummaryLength,
		Weights: quality.Weights{
			Title:      cfg.Quality.Weights.Title,
			Summary:    cfg.Quality.Weights.Summary,
			Image:      cfg.Quality.Weights.Image,
			Source:     cfg.Quality.Weights.Source,
			SourceCap:  cfg.Quality.Weights.SourceCap,
			Language:   cfg.Quality.Weights.Language,
			Classifier: cfg.Quality.Weights.Classifier,
		},
		SensitiveKeywords: cfg.Quality.SensitiveKeywords,
		SpamKeywords:      cfg.Quality.SpamKeywords,
		SourceWeights:     cfg.Quality.SourceWeights,
		MinConfidence:     cfg.Quality.ClassifierMinConf,
	}, classifier, logging.Component(a.logger, "quality"))

	detector, err := dedup.NewDetector(dedup.Options{
		Threshold:      cfg.Dedup.Threshold,
		Tokenizer:      cfg.Dedup.Tokenizer,
		NGram:          cfg.Dedup.NGram,
		MinTokenLength: cfg.Dedup.MinTokenLength,
		Stopwords:      cfg.Dedup.Stopwords,
		CacheSize:      cfg.Dedup.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("build deduplicator: %w", err)
	}

	outlets, err := channels.Build(cfg.Channels, logging.Component(a.logger, "channels"))
	if err != nil {
		return err
	}
	if len(outlets) == 0 {
		return errors.New("no publishing channels configured")
	}
	budgets := map[string]ratelimit.Budget{}
	for _, ch := range cfg.Channels {
		if ch.RateLimit.Calls > 0 {
			budgets[ch.Name] = ratelimit.Budget{Calls: ch.RateLimit.Calls, Period: ch.RateLimit.Period}
		}
	}
	coordinator, err := publish.NewCoordinator(publish.Deps{
		Channels:        outlets,
		Critical:        cfg.CriticalChannel(),
		Limiter:         ratelimit.New(budgets, ratelimit.WithWaitHook(collector.RateLimitWait)),
		Store:           a.store,
		Ledger:          a.store,
		Recorder:        collector,
		Logger:          logging.Component(a.logger, "publish"),
		FirstRetryDelay: cfg.Retry.Schedule[0],
	})
	if err != nil {
		return err
	}

	fetcher := parser.NewFetcher(cfg.Fetch, &http.Client{})
	registry := scanner.NewRegistry(parser.NewRSSScanner(fetcher), parser.NewHTMLListScanner(fetcher))
	source := parser.NewStrategySource(registry, collector, logging.Component(a.logger, "source"))
	a.logger.Debug("scanners registered", zap.Strings("scanners", registry.Names()))

	location := cfg.Scheduler.Location()
	sched := scheduling.New(scheduling.Policy{
		Location:        location,
		OffHours:        cfg.Scheduler.OffHours,
		PeakHours:       cfg.Scheduler.PeakHours,
		ChannelSpacing:  cfg.Scheduler.ChannelSpacing,
		BurstSpacing:    cfg.Scheduler.BurstSpacing,
		CategorySpacing: cfg.Scheduler.CategorySpacing,
	}, nil)

	var checker ports.ImageChecker
	if cfg.Fetch.CheckImages {
		checker = images.NewChecker(cfg.Images, logging.Component(a.logger, "images"))
	}

	a.pipeline, err = usecase.NewPipeline(usecase.PipelineDeps{
		Config:      cfg.Pipeline,
		Fetch:       cfg.Fetch,
		Categories:  cfg.Categories,
		Location:    location,
		Source:      source,
		Store:       a.store,
		Images:      checker,
		Gate:        gate,
		Dedup:       detector,
		Translator:  tr,
		Scheduler:   sched,
		Coordinator: coordinator,
		Recorder:    collector,
		Logger:      logging.Component(a.logger, "pipeline"),
	})
	if err != nil {
		return err
	}

	a.retries, err = usecase.NewRetryWorker(usecase.RetryWorkerDeps{
		Config:      cfg.Retry,
		Languages:   cfg.Pipeline.Languages,
		Ledger:      a.store,
		Translator:  tr,
		Coordinator: coordinator,
		Recorder:    collector,
		Logger:      logging.Component(a.logger, "retry"),
	})
	if err != nil {
		return err
	}

	a.maintenance = usecase.NewMaintenance(usecase.MaintenanceDeps{
		Retry:        cfg.Retry,
		Maintenance:  cfg.Maintenance,
		Driver:       scheduler.NewCronScheduler(cfg.Maintenance.CronExpression, location, logging.Component(a.logger, "cron")),
		Ledger:       a.store,
		Store:        a.store,
		Translations: a.store,
		Logger:       logging.Component(a.logger, "maintenance"),
	})
	return nil
}

// Run starts the ingestion loop, the retry worker, the maintenance job and
// the optional metrics listener, and blocks until ctx is cancelled or one
// of them fails.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.pipeline.Run(gctx) })
	g.Go(func() error { return a.retries.Run(gctx) })
	g.Go(func() error {
		if err := a.maintenance.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return a.maintenance.Stop(context.Background())
	})
	if addr := a.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return a.metrics.Serve(gctx, addr, logging.Component(a.logger, "metrics")) })
	}

	a.logger.Info("newsrelay started",
		zap.Int("categories", len(a.cfg.Categories)),
		zap.Int("channels", len(a.cfg.Channels)),
		zap.String("critical", a.cfg.CriticalChannel()))
	return g.Wait()
}

// Trigger starts a manual ingestion cycle.
func (a *Application) Trigger() {
	if a.pipeline != nil {
		a.pipeline.Trigger()
	}
}

// Close releases the store and the Redis client.
func (a *Application) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
