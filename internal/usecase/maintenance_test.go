package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
)

func TestMaintenanceRunOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{t: tenAM}
	ledger := newMemLedger()
	store := newMemStore()
	purger := &fakeTranslationPurger{}

	old := tenAM.Add(-8 * 24 * time.Hour)
	for _, e := range []domain.RetryEntry{
		{ID: "done", ArticleID: "a1", Channel: "telegram", Status: domain.RetrySuccess, UpdatedAt: old},
		{ID: "dead", ArticleID: "a2", Channel: "telegram", Status: domain.RetryDead, UpdatedAt: tenAM},
		{ID: "stuck", ArticleID: "a3", Channel: "telegram", Status: domain.RetryRetrying, UpdatedAt: tenAM.Add(-time.Hour)},
		{ID: "busy", ArticleID: "a4", Channel: "telegram", Status: domain.RetryRetrying, UpdatedAt: tenAM.Add(-time.Minute)},
	} {
		_, err := ledger.Enqueue(ctx, e)
		require.NoError(t, err)
	}
	_, err := store.MarkPosted(ctx, domain.PostedRecord{ArticleID: "p1", PostedAt: tenAM.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = store.MarkPosted(ctx, domain.PostedRecord{ArticleID: "p2", PostedAt: tenAM.Add(-time.Hour)})
	require.NoError(t, err)

	m := NewMaintenance(MaintenanceDeps{
		Retry:        config.RetryConfig{Retention: 7 * 24 * time.Hour, StaleAfter: 30 * time.Minute},
		Maintenance:  config.MaintenanceConfig{PostedRetention: 30 * 24 * time.Hour, TranslationRetention: 10 * 24 * time.Hour},
		Ledger:       ledger,
		Store:        store,
		Translations: purger,
		Now:          clock.now,
	})

	report, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, MaintenanceReport{RetriesPurged: 1, RetriesReset: 1, PostedPurged: 1, TranslationsPurged: 3}, report)
	assert.Equal(t, tenAM.Add(-10*24*time.Hour), purger.before)

	stuck, err := ledger.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryPending, stuck.Status)
	assert.Equal(t, tenAM, stuck.NextRetryAt)

	busy, err := ledger.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryRetrying, busy.Status)

	_, err = ledger.Get(ctx, "done")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type fakeDriver struct {
	job     func(time.Time)
	stopped bool
}

func (f *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	f.job = job
	return nil
}

func (f *fakeDriver) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func TestMaintenanceRegistersJob(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	store := newMemStore()
	_, err := store.MarkPosted(context.Background(), domain.PostedRecord{ArticleID: "p1", PostedAt: tenAM.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)

	m := NewMaintenance(MaintenanceDeps{
		Maintenance: config.MaintenanceConfig{PostedRetention: 30 * 24 * time.Hour},
		Driver:      driver,
		Store:       store,
		Now:         func() time.Time { return tenAM },
	})
	require.NoError(t, m.Start(context.Background()))
	require.NotNil(t, driver.job)

	driver.job(tenAM)
	posted, err := store.IsPosted(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, posted)

	require.NoError(t, m.Stop(context.Background()))
	assert.True(t, driver.stopped)
}
