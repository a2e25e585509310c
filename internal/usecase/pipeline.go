package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/dedup"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/infrastructure/parser"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/publish"
	"NewsRelay/internal/quality"
	"NewsRelay/internal/scheduling"
	"NewsRelay/internal/translator"
)

// Skip reasons reported to the Recorder.
const (
	SkipPosted       = "already_posted"
	SkipSensitive    = "sensitive"
	SkipQuality      = "low_quality"
	SkipDuplicate    = "duplicate"
	SkipDeferred     = "deferred"
	SkipRetryPending = "retry_pending"
)

const (
	breakingThreshold = 100
	maxErrorBackoff   = 300 * time.Second
	baseErrorBackoff  = 60 * time.Second
)

// Recorder receives pipeline counters.
type Recorder interface {
	ArticleSkipped(reason string)
	ObserveCycle(d time.Duration)
}

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Config      config.PipelineConfig
	Fetch       config.FetchConfig
	Categories  []config.CategoryConfig
	Location    *time.Location
	Source      ports.EntrySource
	Store       ports.ArticleStore
	Images      ports.ImageChecker
	Gate        *quality.Gate
	Dedup       *dedup.Detector
	Translator  *translator.Translator
	Scheduler   *scheduling.Scheduler
	Coordinator *publish.Coordinator
	Recorder    Recorder
	Logger      *zap.Logger
	Now         func() time.Time
}

// CycleReport summarizes one pass over every configured source.
type CycleReport struct {
	Slot     string
	Budget   int
	Manual   bool
	Boosted  bool
	Fetched  int
	Posted   int
	Queued   int
	Skipped  map[string]int
	NextWait time.Duration
}

type slot struct {
	name     string
	start    int
	end      int
	maxPosts int
	delay    time.Duration
}

func (s slot) contains(minute int) bool {
	if s.start <= s.end {
		return minute >= s.start && minute < s.end
	}
	return minute >= s.start || minute < s.end
}

type cyclePlan struct {
	slot      string
	budget    int
	postDelay time.Duration
	idle      time.Duration
	boosted   bool
}

// Pipeline implements the article-ingestion workflow: fetch, gate, dedup,
// translate, schedule and publish.
type Pipeline struct {
	cfg         config.PipelineConfig
	fetch       config.FetchConfig
	categories  []config.CategoryConfig
	location    *time.Location
	slots       []slot
	keywords    []string
	reputable   map[string]bool
	source      ports.EntrySource
	store       ports.ArticleStore
	images      ports.ImageChecker
	gate        *quality.Gate
	dedup       *dedup.Detector
	translator  *translator.Translator
	scheduler   *scheduling.Scheduler
	coordinator *publish.Coordinator
	recorder    Recorder
	logger      *zap.Logger
	now         func() time.Time

	trigger chan struct{}

	mu         sync.Mutex
	boostUntil time.Time
}

// NewPipeline constructs the orchestration component. Slots that fail to
// parse are rejected.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Source == nil || deps.Store == nil || deps.Coordinator == nil {
		return nil, errors.New("pipeline requires a source, an article store and a coordinator")
	}
	if deps.Gate == nil || deps.Dedup == nil || deps.Translator == nil || deps.Scheduler == nil {
		return nil, errors.New("pipeline requires gate, dedup, translator and scheduler")
	}

	p := &Pipeline{
		cfg:         deps.Config,
		fetch:       deps.Fetch,
		categories:  deps.Categories,
		location:    deps.Location,
		reputable:   map[string]bool{},
		source:      deps.Source,
		store:       deps.Store,
		images:      deps.Images,
		gate:        deps.Gate,
		dedup:       deps.Dedup,
		translator:  deps.Translator,
		scheduler:   deps.Scheduler,
		coordinator: deps.Coordinator,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		now:         deps.Now,
		trigger:     make(chan struct{}, 1),
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.location == nil {
		p.location = time.UTC
	}
	for _, kw := range deps.Config.BreakingKeywords {
		p.keywords = append(p.keywords, strings.ToLower(kw))
	}
	for _, name := range deps.Config.ReputableSources {
		p.reputable[name] = true
	}
	for _, sc := range deps.Config.Slots {
		start, err := config.ParseClock(sc.Start)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", sc.Name, err)
		}
		end, err := config.ParseClock(sc.End)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", sc.Name, err)
		}
		p.slots = append(p.slots, slot{name: sc.Name, start: start, end: end, maxPosts: sc.MaxPosts, delay: sc.Delay})
	}
	return p, nil
}

// Trigger requests an immediate manual cycle. It never blocks.
func (p *Pipeline) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run loops over cycles until ctx is cancelled. The idle wait between cycles
// is cut short by Trigger; consecutive cycle failures back off up to 5m.
func (p *Pipeline) Run(ctx context.Context) error {
	var (
		manual   bool
		failures int
	)
	for {
		if !manual {
			select {
			case <-p.trigger:
				manual = true
			default:
			}
		}

		report, err := p.RunCycle(ctx, manual)
		manual = false
		if ctx.Err() != nil {
			return nil
		}

		next := report.NextWait
		if err != nil {
			failures++
			next = errorBackoff(failures)
			p.logger.Error("ingestion cycle failed",
				zap.Int("consecutive", failures), zap.Duration("wait", next), zap.Error(err))
		} else {
			failures = 0
			p.logger.Info("ingestion cycle finished",
				zap.String("slot", report.Slot),
				zap.Int("posted", report.Posted),
				zap.Int("queued", report.Queued),
				zap.Int("fetched", report.Fetched),
				zap.Duration("next", next))
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-p.trigger:
			timer.Stop()
			manual = true
			p.logger.Info("manual trigger received")
		case <-timer.C:
		}
	}
}

func errorBackoff(failures int) time.Duration {
	shift := failures - 5
	if shift < 0 {
		shift = 0
	}
	if shift > 3 {
		return maxErrorBackoff
	}
	d := baseErrorBackoff << shift
	if d > maxErrorBackoff {
		return maxErrorBackoff
	}
	return d
}

// RunCycle visits categories and sources in configured order until the
// cycle budget is spent. Source failures degrade to no entries; store
// failures abort the cycle.
func (p *Pipeline) RunCycle(ctx context.Context, manual bool) (report CycleReport, err error) {
	start := p.now()
	plan := p.plan(start, manual)
	report = CycleReport{
		Slot:    plan.slot,
		Budget:  plan.budget,
		Manual:  manual,
		Boosted: plan.boosted,
		Skipped: map[string]int{},
	}
	defer func() {
		report.NextWait = plan.idle
		if p.recorder != nil {
			p.recorder.ObserveCycle(p.now().Sub(start))
		}
	}()

	recent, err := p.store.RecentTitles(ctx, "", start.Add(-p.cfg.RecentWindow), p.cfg.RecentLimit)
	if err != nil {
		return report, fmt.Errorf("load recent titles: %w", err)
	}

	for _, cat := range p.categories {
		for _, sc := range cat.Sources {
			if report.Posted >= plan.budget || ctx.Err() != nil {
				return report, nil
			}

			src := domain.Source{
				Name:     sc.Name,
				Category: cat.Name,
				Kind:     sc.Scanner,
				URL:      sc.URL,
				BaseURL:  sc.BaseURL,
				Options:  sc.Options,
			}
			entries, fetchErr := p.source.FetchSource(ctx, src)
			if fetchErr != nil {
				p.logger.Warn("source fetch failed", zap.String("source", src.Name), zap.Error(fetchErr))
				continue
			}
			if limit := p.cfg.MaxEntriesPerSource; limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			report.Fetched += len(entries)

			if err := p.processSource(ctx, src, entries, &plan, &recent, &report); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (p *Pipeline) processSource(ctx context.Context, src domain.Source, entries []domain.FeedEntry, plan *cyclePlan, recent *[]string, report *CycleReport) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = domain.ArticleID(e.Title, e.Link)
	}
	posted, err := p.store.PostedAmong(ctx, ids)
	if err != nil {
		return fmt.Errorf("load posted ids: %w", err)
	}

	for i, entry := range entries {
		if report.Posted >= plan.budget || ctx.Err() != nil {
			return nil
		}
		if posted[ids[i]] {
			p.skip(report, SkipPosted)
			continue
		}
		pending, err := p.coordinator.RetryPending(ctx, ids[i])
		if err != nil {
			return fmt.Errorf("check retry ledger: %w", err)
		}
		if pending {
			p.skip(report, SkipRetryPending)
			continue
		}

		a := p.article(ctx, src, entry)
		published, err := p.processArticle(ctx, a, plan, *recent, report)
		if err != nil {
			return err
		}
		if published {
			*recent = append(*recent, a.Title)
			report.Posted++
			if err := sleep(ctx, plan.postDelay); err != nil {
				return nil
			}
		}
	}
	return nil
}

// processArticle runs one candidate through the gate, dedup, scheduler,
// translator and coordinator. It reports whether the critical channel
// accepted the post.
func (p *Pipeline) processArticle(ctx context.Context, a domain.Article, plan *cyclePlan, recent []string, report *CycleReport) (bool, error) {
	log := p.logger.With(zap.String("article_id", a.ID), zap.String("source", a.Source))

	assessment := p.gate.Score(ctx, a)
	if !assessment.Accepted {
		reason := SkipQuality
		if assessment.Sensitive {
			reason = SkipSensitive
		}
		p.skip(report, reason)
		log.Info("article rejected by quality gate",
			zap.Int("score", assessment.Score), zap.Strings("reasons", assessment.Reasons))
		return false, nil
	}

	if match := p.dedup.IsDuplicate(a.Title, recent); match.Duplicate {
		if _, err := p.store.MarkPosted(ctx, domain.PostedRecord{
			ArticleID: a.ID,
			Title:     a.Title,
			Category:  a.Category,
			Source:    a.Source,
			Reason:    domain.ReasonDuplicate,
			PostedAt:  p.now(),
		}); err != nil {
			return false, fmt.Errorf("mark duplicate %s: %w", a.ID, err)
		}
		p.skip(report, SkipDuplicate)
		log.Info("duplicate skipped", zap.Float64("similarity", match.Score), zap.String("match", match.Title))
		return false, nil
	}

	if a.Priority >= domain.PriorityBreaking && p.startBoost() {
		plan.boosted = true
		if plan.budget < p.cfg.BoostBudget {
			plan.budget = p.cfg.BoostBudget
		}
		plan.postDelay = p.cfg.BoostPostDelay
		plan.idle = p.cfg.BoostDelay
		report.Boosted = true
		report.Budget = plan.budget
		log.Info("breaking news detected, boost on", zap.Duration("duration", p.cfg.BoostDuration))
	}

	critical := p.coordinator.Critical()
	if !p.scheduler.CanPost(critical, a.Category, a.Priority) {
		p.skip(report, SkipDeferred)
		log.Debug("scheduler deferred article", zap.String("priority", a.Priority.String()))
		return false, nil
	}

	renditions, sources := p.translator.TranslateAll(ctx, a, p.cfg.Languages)
	log.Debug("renditions ready", zap.Any("sources", sources))

	res, err := p.coordinator.Publish(ctx, a, renditions)
	for _, name := range p.coordinator.Channels() {
		if res.OK(name) {
			p.scheduler.RecordPost(name, a.Category)
		}
	}
	if err != nil {
		return false, fmt.Errorf("publish %s: %w", a.ID, err)
	}
	if res.AlreadyDelivered {
		p.skip(report, SkipPosted)
		return false, nil
	}
	if !res.OK(critical) {
		report.Queued++
		return false, nil
	}
	log.Info("article published", zap.Any("post_ids", res.PostIDs))
	return true, nil
}

// article builds the candidate from a feed entry and assigns its priority.
func (p *Pipeline) article(ctx context.Context, src domain.Source, entry domain.FeedEntry) domain.Article {
	image := entry.ImageRef
	if image != "" && p.fetch.CheckImages && p.images != nil && !p.images.Usable(ctx, image) {
		image = ""
	}
	a := domain.NewArticle(
		entry.Title,
		entry.Link,
		parser.SummaryText(entry.SummaryHTML, p.fetch.SummaryMax),
		image,
		src.Name,
		src.Category,
	)

	switch {
	case p.breakingScore(a) >= breakingThreshold:
		return a.WithPriority(domain.PriorityBreaking)
	case p.reputable[a.Source]:
		return a.WithPriority(domain.PriorityHigh)
	}
	return a
}

func (p *Pipeline) breakingScore(a domain.Article) int {
	title := strings.ToLower(a.Title)
	score := 0
	for _, kw := range p.keywords {
		if kw != "" && strings.Contains(title, kw) {
			score += 100
		}
	}
	if strings.Contains(title, "!") {
		score += 10
	}
	if p.reputable[a.Source] {
		score += 20
	}
	return score
}

// plan picks the cycle budget and waits from the manual flag, an active
// boost, or the current time-of-day slot.
func (p *Pipeline) plan(now time.Time, manual bool) cyclePlan {
	local := now.In(p.location)
	minute := local.Hour()*60 + local.Minute()

	plan := cyclePlan{slot: "default", budget: 1, idle: p.cfg.DefaultDelay, postDelay: p.cfg.PostDelay}
	for _, s := range p.slots {
		if s.contains(minute) {
			plan.slot = s.name
			plan.budget = s.maxPosts / 4
			plan.idle = s.delay
			break
		}
	}
	if plan.budget < 1 {
		plan.budget = 1
	}

	boosted := p.boostActive(now)
	if boosted {
		plan.boosted = true
		plan.idle = p.cfg.BoostDelay
		plan.postDelay = p.cfg.BoostPostDelay
	}

	switch {
	case manual:
		plan.budget = p.cfg.ManualBudget
	case boosted:
		plan.budget = p.cfg.BoostBudget
	}
	return plan
}

// boostActive reports whether a boost window is open and turns scheduler
// burst mode off once it has expired.
func (p *Pipeline) boostActive(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.boostUntil.IsZero() {
		return false
	}
	if now.Before(p.boostUntil) {
		return true
	}
	p.boostUntil = time.Time{}
	p.scheduler.SetBurstMode(false)
	return false
}

// startBoost opens a boost window unless one is already running.
func (p *Pipeline) startBoost() bool {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.boostUntil.IsZero() && now.Before(p.boostUntil) {
		return false
	}
	p.boostUntil = now.Add(p.cfg.BoostDuration)
	p.scheduler.SetBurstMode(true)
	return true
}

// BoostUntil returns the end of the active boost window, or zero.
func (p *Pipeline) BoostUntil() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.boostUntil
}

func (p *Pipeline) skip(report *CycleReport, reason string) {
	report.Skipped[reason]++
	if p.recorder != nil {
		p.recorder.ArticleSkipped(reason)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
