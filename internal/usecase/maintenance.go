package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/ports"
)

// TranslationPurger drops cached renditions older than a cutoff.
type TranslationPurger interface {
	PurgeTranslations(ctx context.Context, before time.Time) (int64, error)
}

// MaintenanceDeps wires the cleanup job.
type MaintenanceDeps struct {
	Retry        config.RetryConfig
	Maintenance  config.MaintenanceConfig
	Driver       ports.Scheduler
	Ledger       ports.RetryLedger
	Store        ports.ArticleStore
	Translations TranslationPurger
	Logger       *zap.Logger
	Now          func() time.Time
}

// MaintenanceReport counts rows touched by one run.
type MaintenanceReport struct {
	RetriesPurged      int64
	RetriesReset       int64
	PostedPurged       int64
	TranslationsPurged int64
}

// Maintenance wires the cron-like driver with the cleanup use case.
type Maintenance struct {
	driver       ports.Scheduler
	ledger       ports.RetryLedger
	store        ports.ArticleStore
	translations TranslationPurger
	retry        config.RetryConfig
	cfg          config.MaintenanceConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewMaintenance returns a helper to start/stop the cleanup job.
func NewMaintenance(deps MaintenanceDeps) *Maintenance {
	m := &Maintenance{
		driver:       deps.Driver,
		ledger:       deps.Ledger,
		store:        deps.Store,
		translations: deps.Translations,
		retry:        deps.Retry,
		cfg:          deps.Maintenance,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Start registers RunOnce with the provided scheduler.
func (m *Maintenance) Start(ctx context.Context) error {
	if m.driver == nil {
		return nil
	}

	job := func(time.Time) {
		report, err := m.RunOnce(ctx)
		if err != nil {
			m.logger.Error("maintenance run failed", zap.Error(err))
			return
		}
		m.logger.Info("maintenance run finished",
			zap.Int64("retries_purged", report.RetriesPurged),
			zap.Int64("retries_reset", report.RetriesReset),
			zap.Int64("posted_purged", report.PostedPurged),
			zap.Int64("translations_purged", report.TranslationsPurged))
	}

	return m.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (m *Maintenance) Stop(ctx context.Context) error {
	if m.driver == nil {
		return nil
	}

	return m.driver.Stop(ctx)
}

// RunOnce resets stale RETRYING entries and purges rows past retention.
// A zero retention disables that purge. Every step runs even if an earlier
// one fails.
func (m *Maintenance) RunOnce(ctx context.Context) (MaintenanceReport, error) {
	var (
		report MaintenanceReport
		errs   []error
	)
	now := m.now()

	if m.ledger != nil {
		if m.retry.StaleAfter > 0 {
			n, err := m.ledger.ResetStale(ctx, now.Add(-m.retry.StaleAfter), now)
			if err != nil {
				errs = append(errs, fmt.Errorf("reset stale retries: %w", err))
			}
			report.RetriesReset = n
		}
		if m.retry.Retention > 0 {
			n, err := m.ledger.PurgeTerminal(ctx, now.Add(-m.retry.Retention))
			if err != nil {
				errs = append(errs, fmt.Errorf("purge retries: %w", err))
			}
			report.RetriesPurged = n
		}
	}

	if m.store != nil && m.cfg.PostedRetention > 0 {
		n, err := m.store.PurgePosted(ctx, now.Add(-m.cfg.PostedRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge posted: %w", err))
		}
		report.PostedPurged = n
	}

	if m.translations != nil && m.cfg.TranslationRetention > 0 {
		n, err := m.translations.PurgeTranslations(ctx, now.Add(-m.cfg.TranslationRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge translations: %w", err))
		}
		report.TranslationsPurged = n
	}

	return report, errors.Join(errs...)
}
