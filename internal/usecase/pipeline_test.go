package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"NewsRelay/internal/breaker"
	"NewsRelay/internal/config"
	"NewsRelay/internal/dedup"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/publish"
	"NewsRelay/internal/quality"
	"NewsRelay/internal/scheduling"
	"NewsRelay/internal/translator"
)

const (
	testSource   = "Phnom Penh Post"
	testCategory = "cambodia"
)

var tenAM = time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

type harness struct {
	clock       *testClock
	source      *fakeSource
	store       *memStore
	ledger      *memLedger
	renderer    *fakeRenderer
	mt          *fakeMT
	telegram    *fakeChannel
	facebook    *fakeChannel
	translator  *translator.Translator
	scheduler   *scheduling.Scheduler
	coordinator *publish.Coordinator
	pipeline    *Pipeline
}

type harnessOptions struct {
	channelSpacing time.Duration
	slots          []config.SlotConfig
	maxEntries     int
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Languages:     []string{"km"},
		RecentWindow:  48 * time.Hour,
		RecentLimit:   200,
		Slots:         []config.SlotConfig{{Name: "all-day", Start: "00:00", End: "23:59", MaxPosts: 40, Delay: time.Minute}},
		DefaultDelay:  5 * time.Minute,
		ManualBudget:  10,
		BoostBudget:   15,
		BoostDelay:    time.Minute,
		BoostDuration: 15 * time.Minute,
		BreakingKeywords: []string{
			"Breaking", "ផ្ទុះ",
		},
		ReputableSources: []string{"BBC News"},
	}
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	h := &harness{
		clock:    &testClock{t: tenAM},
		source:   &fakeSource{entries: map[string][]domain.FeedEntry{}, err: map[string]error{}},
		store:    newMemStore(),
		ledger:   newMemLedger(),
		renderer: &fakeRenderer{},
		mt:       &fakeMT{},
		telegram: &fakeChannel{name: "telegram"},
		facebook: &fakeChannel{name: "facebook"},
	}

	br := breaker.New(breaker.Config{FailureThreshold: 5, RecoveryTimeout: 10 * time.Minute, Now: h.clock.now})
	h.translator = translator.New(translator.Deps{
		Renderer: h.renderer,
		Fallback: h.mt,
		Breaker:  br,
		Logger:   logger,
	}, translator.Options{Now: h.clock.now})

	policy := scheduling.DefaultPolicy()
	policy.ChannelSpacing = opts.channelSpacing
	policy.BurstSpacing = 0
	policy.CategorySpacing = 0
	h.scheduler = scheduling.New(policy, h.clock.now)

	coord, err := publish.NewCoordinator(publish.Deps{
		Channels:        []ports.Channel{h.telegram, h.facebook},
		Critical:        "telegram",
		Store:           h.store,
		Ledger:          h.ledger,
		Logger:          logger,
		Now:             h.clock.now,
		FirstRetryDelay: time.Minute,
	})
	require.NoError(t, err)
	h.coordinator = coord

	detector, err := dedup.NewDetector(dedup.Options{Threshold: 0.8, Tokenizer: dedup.TokenizerNGram})
	require.NoError(t, err)

	cfg := testPipelineConfig()
	cfg.MaxEntriesPerSource = opts.maxEntries
	if opts.slots != nil {
		cfg.Slots = opts.slots
	}

	h.pipeline, err = NewPipeline(PipelineDeps{
		Config: cfg,
		Fetch:  config.FetchConfig{SummaryMax: 1000},
		Categories: []config.CategoryConfig{{
			Name:    testCategory,
			Sources: []config.SourceConfig{{Name: testSource, Scanner: config.ScannerRSS, URL: "https://feed.example.com/rss"}},
		}},
		Location: time.UTC,
		Source:   h.source,
		Store:    h.store,
		Gate: quality.NewGate(quality.Options{
			Threshold:         60,
			SensitiveKeywords: []string{"porn"},
		}, nil, logger),
		Dedup:       detector,
		Translator:  h.translator,
		Scheduler:   h.scheduler,
		Coordinator: h.coordinator,
		Logger:      logger,
		Now:         h.clock.now,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) feed(entries ...domain.FeedEntry) {
	h.source.entries[testSource] = entries
}

func feedEntry(title string) domain.FeedEntry {
	return domain.FeedEntry{
		Title:       title,
		Link:        "https://news.example.com/" + url.PathEscape(title),
		SummaryHTML: "<p>" + strings.Repeat("Officials gave details at a press briefing in the capital. ", 3) + "</p>",
		ImageRef:    "https://cdn.example.com/photo.jpg",
	}
}

func TestDuplicateTitleDiscardedWithinCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	first := feedEntry("PM announces new policy")
	second := feedEntry("PM announces new policy today")
	h.feed(first, second)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Posted)
	assert.Equal(t, 1, report.Skipped[SkipDuplicate])
	assert.Equal(t, 1, h.telegram.calls())
	assert.Equal(t, 1, h.facebook.calls())

	rec, ok := h.store.record(domain.ArticleID(first.Title, first.Link))
	require.True(t, ok)
	assert.Equal(t, domain.ReasonPublished, rec.Reason)

	dup, ok := h.store.record(domain.ArticleID(second.Title, second.Link))
	require.True(t, ok)
	assert.Equal(t, domain.ReasonDuplicate, dup.Reason)
}

func TestSensitiveArticleDiscardedBeforeTranslation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.feed(feedEntry("Police shut down porn ring operating in the capital"))

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped[SkipSensitive])
	assert.Zero(t, report.Posted)
	assert.Zero(t, h.renderer.count())
	assert.Zero(t, h.telegram.calls())
	assert.Empty(t, h.ledger.all())
}

func TestCriticalNetworkFailureQueuesSingleRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.telegram.setErr(domain.NewPublishError("telegram", domain.ErrorNetwork, errors.New("connection reset")))
	e := feedEntry("Ministry opens new bridge over the Mekong")
	h.feed(e)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)

	assert.Zero(t, report.Posted)
	assert.Equal(t, 1, report.Queued)
	assert.Zero(t, h.facebook.calls())

	_, posted := h.store.record(domain.ArticleID(e.Title, e.Link))
	assert.False(t, posted)

	entries := h.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "telegram", entries[0].Channel)
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.Equal(t, domain.RetryPending, entries[0].Status)
	assert.Equal(t, domain.ErrorNetwork, entries[0].ErrorType)
	assert.Equal(t, tenAM.Add(time.Minute), entries[0].NextRetryAt)
}

func TestUnreachableRendererOpensBreaker(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.renderer.err = errors.New("dial tcp: connection refused")

	a := domain.NewArticle("Rice exports climb again", "https://news.example.com/rice", "Exports rose.", "", testSource, testCategory)
	for i := 0; i < 5; i++ {
		out := h.translator.Translate(context.Background(), a, "km")
		assert.Equal(t, translator.SourceFallback, out.Source)
	}
	assert.Equal(t, 5, h.renderer.count())
	assert.Equal(t, breaker.StateOpen, h.translator.Breaker().State())

	h.clock.advance(time.Minute)
	out := h.translator.Translate(context.Background(), a, "km")
	assert.Equal(t, translator.SourceFallback, out.Source)
	assert.ErrorIs(t, out.Err, breaker.ErrOpen)
	assert.Equal(t, 5, h.renderer.count())
}

func TestAlreadyPostedEntriesSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	e := feedEntry("Flood waters recede in Kratie province")
	h.feed(e)

	_, err := h.store.MarkPosted(context.Background(), domain.PostedRecord{
		ArticleID: domain.ArticleID(e.Title, e.Link),
		Title:     e.Title,
		Reason:    domain.ReasonPublished,
		PostedAt:  tenAM.Add(-time.Hour),
	})
	require.NoError(t, err)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped[SkipPosted])
	assert.Zero(t, h.telegram.calls())
}

func TestActiveCriticalRetryOwnsArticle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	w := newRetryWorker(t, h, nil)
	e := feedEntry("Ministry opens new bridge over the Mekong")
	id := domain.ArticleID(e.Title, e.Link)
	h.feed(e)

	h.telegram.setErr(domain.NewPublishError("telegram", domain.ErrorNetwork, errors.New("connection reset")))
	report, err := h.pipeline.RunCycle(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Queued)

	h.telegram.setErr(nil)
	report, err = h.pipeline.RunCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped[SkipRetryPending])
	assert.Zero(t, report.Posted)
	assert.Equal(t, 1, h.telegram.calls())
	assert.Zero(t, h.facebook.calls())

	h.clock.advance(time.Minute)
	summary, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Due: 1, Succeeded: 1}, summary)
	assert.Equal(t, 2, h.telegram.calls())
	assert.Equal(t, 1, h.facebook.calls())

	_, posted := h.store.record(id)
	require.True(t, posted)

	report, err = h.pipeline.RunCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped[SkipPosted])
	assert.Equal(t, 2, h.telegram.calls())
	assert.Equal(t, 1, h.facebook.calls())
}

func TestCycleBudgetStopsPosting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{
		slots: []config.SlotConfig{{Name: "lunch-peak", Start: "09:00", End: "12:00", MaxPosts: 8, Delay: 45 * time.Second}},
	})
	h.feed(
		feedEntry("Parliament approves national budget"),
		feedEntry("Garment exports reach record high"),
		feedEntry("New expressway opens to traffic"),
	)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "lunch-peak", report.Slot)
	assert.Equal(t, 2, report.Budget)
	assert.Equal(t, 2, report.Posted)
	assert.Equal(t, 45*time.Second, report.NextWait)
	assert.Equal(t, 2, h.telegram.calls())
}

func TestSchedulerDefersSecondPost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{channelSpacing: 5 * time.Minute})
	h.feed(
		feedEntry("Parliament approves national budget"),
		feedEntry("Garment exports reach record high"),
	)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Posted)
	assert.Equal(t, 1, report.Skipped[SkipDeferred])
	assert.Len(t, h.ledger.all(), 0)
}

func TestBreakingNewsStartsBoost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{channelSpacing: 5 * time.Minute})
	h.feed(
		feedEntry("Breaking: fire destroys market in Siem Reap"),
		feedEntry("Garment exports reach record high"),
	)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, report.Boosted)
	assert.Equal(t, 15, report.Budget)
	assert.Equal(t, time.Minute, report.NextWait)
	assert.Equal(t, tenAM.Add(15*time.Minute), h.pipeline.BoostUntil())
	assert.True(t, h.scheduler.BurstMode())

	first := h.telegram.posts[0].Article
	assert.Equal(t, domain.PriorityBreaking, first.Priority)

	h.clock.advance(16 * time.Minute)
	h.feed()
	report, err = h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, report.Boosted)
	assert.False(t, h.scheduler.BurstMode())
}

func TestSourceFailureDegradesToNoEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.source.err[testSource] = errors.New("feed unreachable")

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, report.Fetched)
	assert.Equal(t, []string{testSource}, h.source.calls)
}

func TestMaxEntriesPerSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{maxEntries: 1})
	h.feed(
		feedEntry("Parliament approves national budget"),
		feedEntry("Garment exports reach record high"),
	)

	report, err := h.pipeline.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, "Parliament approves national budget", h.telegram.posts[0].Article.Title)
}

func TestPlanBudgets(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{
		slots: []config.SlotConfig{
			{Name: "lunch-peak", Start: "11:30", End: "13:30", MaxPosts: 8, Delay: 45 * time.Second},
			{Name: "late", Start: "22:00", End: "02:00", MaxPosts: 2, Delay: 150 * time.Second},
		},
	})

	lunch := h.pipeline.plan(time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC), false)
	assert.Equal(t, "lunch-peak", lunch.slot)
	assert.Equal(t, 2, lunch.budget)

	late := h.pipeline.plan(time.Date(2025, 5, 4, 1, 0, 0, 0, time.UTC), false)
	assert.Equal(t, "late", late.slot)
	assert.Equal(t, 1, late.budget)
	assert.Equal(t, 150*time.Second, late.idle)

	idle := h.pipeline.plan(time.Date(2025, 5, 4, 4, 0, 0, 0, time.UTC), false)
	assert.Equal(t, "default", idle.slot)
	assert.Equal(t, 1, idle.budget)
	assert.Equal(t, 5*time.Minute, idle.idle)

	manual := h.pipeline.plan(time.Date(2025, 5, 4, 4, 0, 0, 0, time.UTC), true)
	assert.Equal(t, 10, manual.budget)
}

func TestErrorBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 60*time.Second, errorBackoff(1))
	assert.Equal(t, 60*time.Second, errorBackoff(5))
	assert.Equal(t, 120*time.Second, errorBackoff(6))
	assert.Equal(t, 240*time.Second, errorBackoff(7))
	assert.Equal(t, 300*time.Second, errorBackoff(8))
	assert.Equal(t, 300*time.Second, errorBackoff(40))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx) }()

	h.pipeline.Trigger()
	h.pipeline.Trigger()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
