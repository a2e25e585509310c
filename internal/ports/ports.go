package ports

import (
	"context"
	"time"

	"NewsRelay/internal/domain"
)

// EntrySource pulls raw entries for one configured source.
type EntrySource interface {
	FetchSource(ctx context.Context, src domain.Source) ([]domain.FeedEntry, error)
}

// Renderer produces a localized rendition through an LLM backend.
type Renderer interface {
	Render(ctx context.Context, title, summary, language string) (domain.Rendition, error)
}

// FallbackTranslator is a deterministic machine-translation service.
type FallbackTranslator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// Classification is the label returned by a text classifier.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// QualityClassifier optionally adjusts the quality score.
type QualityClassifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ImageChecker reports whether an image reference is usable for posting.
type ImageChecker interface {
	Usable(ctx context.Context, url string) bool
}

// Post is the channel-agnostic payload handed to a Channel.
type Post struct {
	Article    domain.Article
	Renditions map[string]domain.Rendition
	ImageURL   string
}

// Channel publishes to one outlet and returns the remote post id.
// Errors must be *domain.PublishError so they can be classified.
type Channel interface {
	Name() string
	Post(ctx context.Context, post Post) (string, error)
}

// ArticleStore is the idempotence gate and recent-title window.
type ArticleStore interface {
	IsPosted(ctx context.Context, articleID string) (bool, error)
	PostedAmong(ctx context.Context, articleIDs []string) (map[string]bool, error)
	MarkPosted(ctx context.Context, rec domain.PostedRecord) (bool, error)
	RecentTitles(ctx context.Context, category string, since time.Time, limit int) ([]string, error)
	PurgePosted(ctx context.Context, before time.Time) (int64, error)
}

// TranslationCache stores renditions keyed by (article, language).
type TranslationCache interface {
	GetTranslation(ctx context.Context, articleID, language string) (domain.Rendition, bool, error)
	SaveTranslation(ctx context.Context, rec domain.TranslationRecord) error
}

// RetryLedger is the durable queue of per-channel publish failures.
type RetryLedger interface {
	Enqueue(ctx context.Context, entry domain.RetryEntry) (bool, error)
	Due(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error)
	Active(ctx context.Context, articleID, channel string) (bool, error)
	MarkRetrying(ctx context.Context, id string, now time.Time) error
	Reschedule(ctx context.Context, id string, count int, next time.Time, errType domain.ErrorType, msg string, now time.Time) error
	MarkSucceeded(ctx context.Context, id string, now time.Time) error
	MarkDead(ctx context.Context, id string, count int, errType domain.ErrorType, msg string, now time.Time) error
	Get(ctx context.Context, id string) (domain.RetryEntry, error)
	ListByStatus(ctx context.Context, status domain.RetryStatus, limit int) ([]domain.RetryEntry, error)
	Requeue(ctx context.Context, id string, now time.Time) error
	ResetStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error)
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
