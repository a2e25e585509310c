package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/publish"
	"NewsRelay/internal/retry"
	"NewsRelay/internal/translator"
)

// Retry outcomes reported to the RetryRecorder.
const (
	OutcomeSuccess       = "success"
	OutcomeAlreadyPosted = "already_posted"
	OutcomeRescheduled   = "rescheduled"
	OutcomeDead          = "dead"
	OutcomeFailed        = "failed"
)

const (
	defaultPollInterval = 5 * time.Minute
	defaultBatchSize    = 50
)

// RetryRecorder receives retry outcomes.
type RetryRecorder interface {
	RetryOutcome(channel, outcome string)
}

// RetryWorkerDeps wires the retry worker.
type RetryWorkerDeps struct {
	Config      config.RetryConfig
	Languages   []string
	Ledger      ports.RetryLedger
	Translator  *translator.Translator
	Coordinator *publish.Coordinator
	Recorder    RetryRecorder
	Logger      *zap.Logger
	Now         func() time.Time
}

// RetrySummary counts what one poll did.
type RetrySummary struct {
	Due           int
	Succeeded     int
	AlreadyPosted int
	Rescheduled   int
	Dead          int
	Failed        int
}

// RetryWorker drains due ledger entries one channel at a time.
type RetryWorker struct {
	ledger      ports.RetryLedger
	translator  *translator.Translator
	coordinator *publish.Coordinator
	recorder    RetryRecorder
	logger      *zap.Logger
	now         func() time.Time
	policy      retry.Policy
	languages   []string
	interval    time.Duration
	batch       int
}

// NewRetryWorker builds the worker. The ledger policy takes its attempt
// budget and backoff table from cfg.
func NewRetryWorker(deps RetryWorkerDeps) (*RetryWorker, error) {
	if deps.Ledger == nil || deps.Coordinator == nil || deps.Translator == nil {
		return nil, errors.New("retry worker requires a ledger, a coordinator and a translator")
	}

	policy := retry.LedgerPolicy()
	if deps.Config.MaxRetries > 0 {
		policy.MaxAttempts = deps.Config.MaxRetries
	}
	if len(deps.Config.Schedule) > 0 {
		policy.Backoff = deps.Config.Schedule
	}

	w := &RetryWorker{
		ledger:      deps.Ledger,
		translator:  deps.Translator,
		coordinator: deps.Coordinator,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		now:         deps.Now,
		policy:      policy,
		languages:   deps.Languages,
		interval:    deps.Config.PollInterval,
		batch:       deps.Config.BatchSize,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if w.batch <= 0 {
		w.batch = defaultBatchSize
	}
	return w, nil
}

// Run polls the ledger until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) error {
	w.logger.Info("retry worker started",
		zap.Duration("poll_interval", w.interval),
		zap.Int("max_retries", w.policy.MaxAttempts))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("retry poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("retry worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce handles every entry due now, oldest first. A ledger error on
// one entry is logged and counted as failed; the rest of the batch still runs.
func (w *RetryWorker) ProcessOnce(ctx context.Context) (RetrySummary, error) {
	var summary RetrySummary

	entries, err := w.ledger.Due(ctx, w.now(), w.batch)
	if err != nil {
		return summary, fmt.Errorf("load due retries: %w", err)
	}
	summary.Due = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		outcome, err := w.process(ctx, entry)
		if err != nil {
			w.logger.Error("retry entry failed",
				zap.String("retry_id", entry.ID),
				zap.String("article_id", entry.ArticleID),
				zap.String("channel", entry.Channel),
				zap.Error(err))
			outcome = OutcomeFailed
		}
		switch outcome {
		case OutcomeSuccess:
			summary.Succeeded++
		case OutcomeAlreadyPosted:
			summary.AlreadyPosted++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeRescheduled:
			summary.Rescheduled++
		case OutcomeDead:
			summary.Dead++
		default:
			continue
		}
		if w.recorder != nil {
			w.recorder.RetryOutcome(entry.Channel, outcome)
		}
	}
	return summary, nil
}

func (w *RetryWorker) process(ctx context.Context, entry domain.RetryEntry) (string, error) {
	log := w.logger.With(
		zap.String("retry_id", entry.ID),
		zap.String("article_id", entry.ArticleID),
		zap.String("channel", entry.Channel),
		zap.Int("retry_count", entry.RetryCount))

	// A critical entry whose article is already posted settles without a post.
	critical := entry.Channel == w.coordinator.Critical()
	if critical {
		posted, err := w.coordinator.Posted(ctx, entry.ArticleID)
		if err != nil {
			return "", fmt.Errorf("check posted %s: %w", entry.ArticleID, err)
		}
		if posted {
			if err := w.ledger.MarkSucceeded(ctx, entry.ID, w.now()); err != nil {
				return "", fmt.Errorf("settle retry %s: %w", entry.ID, err)
			}
			log.Info("article already posted, retry settled")
			return OutcomeAlreadyPosted, nil
		}
	}

	if w.policy.Exhausted(entry.RetryCount) {
		if err := w.ledger.MarkDead(ctx, entry.ID, entry.RetryCount, entry.ErrorType, entry.ErrorMessage, w.now()); err != nil {
			return "", fmt.Errorf("dead-letter %s: %w", entry.ID, err)
		}
		log.Warn("retry budget exhausted")
		return OutcomeDead, nil
	}

	if err := w.ledger.MarkRetrying(ctx, entry.ID, w.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug("retry entry claimed elsewhere")
			return "", nil
		}
		return "", fmt.Errorf("claim retry %s: %w", entry.ID, err)
	}

	renditions, _ := w.translator.TranslateAll(ctx, entry.Article, w.languages)
	_, pubErr := w.coordinator.PublishChannel(ctx, entry.Channel, entry.Article, renditions)
	if pubErr == nil {
		if err := w.ledger.MarkSucceeded(ctx, entry.ID, w.now()); err != nil {
			return "", fmt.Errorf("mark retry %s succeeded: %w", entry.ID, err)
		}
		log.Info("retry delivered")
		if critical {
			if err := w.coordinator.MarkPublished(ctx, entry.Article); err != nil {
				log.Error("mark posted after retry", zap.Error(err))
			}
			if _, err := w.coordinator.FanOut(ctx, entry.Article, renditions); err != nil {
				log.Error("fan out after retry", zap.Error(err))
			}
		}
		return OutcomeSuccess, nil
	}

	count := entry.RetryCount + 1
	errType := domain.ClassifyError(pubErr)
	now := w.now()
	if errType.Permanent() || w.policy.Exhausted(count) {
		if err := w.ledger.MarkDead(ctx, entry.ID, count, errType, pubErr.Error(), now); err != nil {
			return "", fmt.Errorf("dead-letter %s: %w", entry.ID, err)
		}
		log.Warn("retry dead-lettered", zap.String("error_type", string(errType)), zap.Error(pubErr))
		return OutcomeDead, nil
	}

	next := now.Add(w.policy.Delay(entry.RetryCount))
	if err := w.ledger.Reschedule(ctx, entry.ID, count, next, errType, pubErr.Error(), now); err != nil {
		return "", fmt.Errorf("reschedule %s: %w", entry.ID, err)
	}
	log.Info("retry rescheduled", zap.Time("next_retry_at", next), zap.Error(pubErr))
	return OutcomeRescheduled, nil
}
