// Package publish fans an article out across channels and records every
// outcome in the article store or the retry ledger.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// ErrUnknownChannel is returned for a channel name that is not registered.
var ErrUnknownChannel = errors.New("unknown channel")

// Limiter admits calls per channel.
type Limiter interface {
	Acquire(ctx context.Context, channel string) error
}

// Recorder receives publish outcomes.
type Recorder interface {
	PostResult(channel, status string)
}

// Result holds per-channel outcomes of one publish.
type Result struct {
	Delivered map[string]bool
	PostIDs   map[string]string
	Errors    map[string]error
	// AlreadyDelivered is set when the critical channel accepted the article
	// earlier but its PostedRecord was not written at the time.
	AlreadyDelivered bool
}

func newResult() Result {
	return Result{Delivered: map[string]bool{}, PostIDs: map[string]string{}, Errors: map[string]error{}}
}

// OK reports whether channel accepted the post.
func (r Result) OK(channel string) bool {
	return r.Delivered[channel]
}

// Deps wires the coordinator.
type Deps struct {
	Channels []ports.Channel
	Critical string
	Limiter  Limiter
	Store    ports.ArticleStore
	Ledger   ports.RetryLedger
	Recorder Recorder
	Logger   *zap.Logger
	Now      func() time.Time
	// FirstRetryDelay schedules the first attempt of a new retry entry.
	FirstRetryDelay time.Duration
}

// Coordinator publishes to the critical channel first and, on success,
// to every secondary channel concurrently.
type Coordinator struct {
	channels map[string]ports.Channel
	order    []string
	critical string
	limiter  Limiter
	store    ports.ArticleStore
	ledger   ports.RetryLedger
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	delay    time.Duration

	mu         sync.Mutex
	unrecorded map[string]domain.PostedRecord
}

// NewCoordinator validates that the critical channel is registered.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	c := &Coordinator{
		channels: make(map[string]ports.Channel, len(deps.Channels)),
		critical: deps.Critical,
		limiter:  deps.Limiter,
		store:    deps.Store,
		ledger:   deps.Ledger,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		now:      deps.Now,
		delay:    deps.FirstRetryDelay,

		unrecorded: map[string]domain.PostedRecord{},
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	for _, ch := range deps.Channels {
		c.channels[ch.Name()] = ch
		c.order = append(c.order, ch.Name())
	}
	if _, ok := c.channels[c.critical]; !ok {
		return nil, fmt.Errorf("critical channel %q: %w", c.critical, ErrUnknownChannel)
	}
	if c.store == nil || c.ledger == nil {
		return nil, errors.New("coordinator requires an article store and a retry ledger")
	}
	return c, nil
}

// Critical returns the critical channel name.
func (c *Coordinator) Critical() string {
	return c.critical
}

// Secondaries returns the non-critical channel names in registration order.
func (c *Coordinator) Secondaries() []string {
	out := make([]string, 0, len(c.order))
	for _, name := range c.order {
		if name != c.critical {
			out = append(out, name)
		}
	}
	return out
}

// Publish delivers a to the critical channel and, if that succeeds, marks
// it posted and fans out. The returned error reports store failures only;
// channel failures land in the retry ledger. A failed PostedRecord write does
// not stop the fan-out, and the article is not delivered again while the
// process keeps the pending record.
func (c *Coordinator) Publish(ctx context.Context, a domain.Article, renditions map[string]domain.Rendition) (Result, error) {
	res := newResult()
	log := c.logger.With(zap.String("article_id", a.ID))

	delivered := c.isUnrecorded(a.ID)
	c.flushUnrecorded(ctx)
	if delivered {
		res.AlreadyDelivered = true
		log.Warn("article delivered earlier and still unrecorded, not posting again")
		return res, nil
	}

	id, err := c.PublishChannel(ctx, c.critical, a, renditions)
	if err != nil {
		res.Delivered[c.critical] = false
		res.Errors[c.critical] = err
		log.Warn("critical channel failed", zap.String("channel", c.critical), zap.Error(err))
		if qErr := c.EnqueueFailure(ctx, a, c.critical, err); qErr != nil {
			return res, qErr
		}
		return res, nil
	}
	res.Delivered[c.critical] = true
	res.PostIDs[c.critical] = id

	markErr := c.MarkPublished(ctx, a)
	if markErr != nil {
		log.Error("posted record not written, fanning out anyway", zap.Error(markErr))
	}

	fan, err := c.FanOut(ctx, a, renditions)
	for name, ok := range fan.Delivered {
		res.Delivered[name] = ok
	}
	for name, pid := range fan.PostIDs {
		res.PostIDs[name] = pid
	}
	for name, e := range fan.Errors {
		res.Errors[name] = e
	}
	return res, errors.Join(markErr, err)
}

// MarkPublished writes the PostedRecord for a. On failure the record is kept
// in memory and written again on the next Publish.
func (c *Coordinator) MarkPublished(ctx context.Context, a domain.Article) error {
	rec := domain.PostedRecord{
		ArticleID: a.ID,
		Title:     a.Title,
		Category:  a.Category,
		Source:    a.Source,
		Reason:    domain.ReasonPublished,
		PostedAt:  c.now(),
	}
	if _, err := c.store.MarkPosted(context.WithoutCancel(ctx), rec); err != nil {
		c.mu.Lock()
		c.unrecorded[a.ID] = rec
		c.mu.Unlock()
		return fmt.Errorf("mark posted %s: %w", a.ID, err)
	}
	return nil
}

// Posted reports whether the article has a PostedRecord, counting records
// still waiting to be written.
func (c *Coordinator) Posted(ctx context.Context, articleID string) (bool, error) {
	if c.isUnrecorded(articleID) {
		return true, nil
	}
	return c.store.IsPosted(ctx, articleID)
}

// RetryPending reports whether the critical channel already has an active
// retry entry for the article.
func (c *Coordinator) RetryPending(ctx context.Context, articleID string) (bool, error) {
	return c.ledger.Active(ctx, articleID, c.critical)
}

func (c *Coordinator) isUnrecorded(articleID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.unrecorded[articleID]
	return ok
}

func (c *Coordinator) flushUnrecorded(ctx context.Context) {
	c.mu.Lock()
	pending := make([]domain.PostedRecord, 0, len(c.unrecorded))
	for _, rec := range c.unrecorded {
		pending = append(pending, rec)
	}
	c.mu.Unlock()

	for _, rec := range pending {
		if _, err := c.store.MarkPosted(context.WithoutCancel(ctx), rec); err != nil {
			c.logger.Warn("posted record still not written", zap.String("article_id", rec.ArticleID), zap.Error(err))
			continue
		}
		c.mu.Lock()
		delete(c.unrecorded, rec.ArticleID)
		c.mu.Unlock()
	}
}

// FanOut posts to every secondary channel concurrently. Each failure gets its
// own retry entry; the returned error joins ledger write failures.
func (c *Coordinator) FanOut(ctx context.Context, a domain.Article, renditions map[string]domain.Rendition) (Result, error) {
	res := newResult()
	var (
		g       errgroup.Group
		mu      sync.Mutex
		ledgerE []error
	)
	for _, name := range c.Secondaries() {
		g.Go(func() error {
			id, err := c.PublishChannel(ctx, name, a, renditions)
			var qErr error
			if err != nil {
				c.logger.Warn("secondary channel failed",
					zap.String("article_id", a.ID), zap.String("channel", name), zap.Error(err))
				qErr = c.EnqueueFailure(ctx, a, name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Delivered[name] = err == nil
			if err == nil {
				res.PostIDs[name] = id
			} else {
				res.Errors[name] = err
			}
			if qErr != nil {
				ledgerE = append(ledgerE, qErr)
			}
			return nil
		})
	}
	_ = g.Wait()
	return res, errors.Join(ledgerE...)
}

// PublishChannel waits for rate-limit admission and posts to one channel.
// Once admitted the post itself is not cancelled with ctx.
func (c *Coordinator) PublishChannel(ctx context.Context, name string, a domain.Article, renditions map[string]domain.Rendition) (string, error) {
	ch, ok := c.channels[name]
	if !ok {
		return "", domain.NewPublishError(name, domain.ErrorBadRequest, ErrUnknownChannel)
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, name); err != nil {
			c.record(name, "rate_limited")
			return "", domain.NewPublishError(name, domain.ErrorRateLimited, err)
		}
	}

	id, err := ch.Post(context.WithoutCancel(ctx), ports.Post{
		Article:    a,
		Renditions: renditions,
		ImageURL:   a.ImageURL,
	})
	if err != nil {
		c.record(name, "failure")
		var pe *domain.PublishError
		if !errors.As(err, &pe) {
			err = domain.NewPublishError(name, domain.ErrorUnknown, err)
		}
		return "", err
	}
	c.record(name, "success")
	return id, nil
}

// EnqueueFailure records a retry entry for (a, channel). Permanent error
// types are written directly as DEAD.
func (c *Coordinator) EnqueueFailure(ctx context.Context, a domain.Article, channel string, cause error) error {
	now := c.now()
	errType := domain.ClassifyError(cause)
	entry := domain.RetryEntry{
		ID:           uuid.NewString(),
		ArticleID:    a.ID,
		Channel:      channel,
		ErrorType:    errType,
		ErrorMessage: cause.Error(),
		RetryCount:   0,
		NextRetryAt:  now.Add(c.delay),
		Status:       domain.RetryPending,
		Article:      a,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errType.Permanent() {
		entry.Status = domain.RetryDead
	}

	created, err := c.ledger.Enqueue(context.WithoutCancel(ctx), entry)
	if err != nil {
		return fmt.Errorf("enqueue retry %s/%s: %w", a.ID, channel, err)
	}
	if !created {
		c.logger.Debug("retry entry already active", zap.String("article_id", a.ID), zap.String("channel", channel))
	}
	return nil
}

// Channels returns every registered channel name, sorted.
func (c *Coordinator) Channels() []string {
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) record(channel, status string) {
	if c.recorder != nil {
		c.recorder.PostResult(channel, status)
	}
}
