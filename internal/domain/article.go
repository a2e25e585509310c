package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Priority orders candidates; PriorityBreaking is the maximum.
type Priority int

const (
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityBreaking Priority = 3
)

// String returns a short label for logs and metrics.
func (p Priority) String() string {
	switch {
	case p >= PriorityBreaking:
		return "breaking"
	case p == PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// FeedEntry is a raw item as returned by a feed source.
type FeedEntry struct {
	Title       string
	Link        string
	SummaryHTML string
	ImageRef    string
	PublishedAt *time.Time
}

// Source identifies a configured feed inside a category.
type Source struct {
	Name     string
	Category string
	Kind     string
	URL      string
	BaseURL  string
	Options  map[string]string
}

// Article is a candidate unit of work. It is never mutated after creation;
// ID is the join key across every store.
type Article struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Link     string   `json:"link"`
	Summary  string   `json:"summary"`
	ImageURL string   `json:"image_url,omitempty"`
	Source   string   `json:"source"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
}

// ArticleID derives the stable identifier of an article from its title and link.
func ArticleID(title, link string) string {
	sum := md5.Sum([]byte(title + link))
	return hex.EncodeToString(sum[:])
}

// NewArticle builds an article with a derived ID and normal priority.
func NewArticle(title, link, summary, imageURL, source, category string) Article {
	return Article{
		ID:       ArticleID(title, link),
		Title:    title,
		Link:     link,
		Summary:  summary,
		ImageURL: imageURL,
		Source:   source,
		Category: category,
		Priority: PriorityNormal,
	}
}

// WithPriority returns a copy of the article carrying priority p.
func (a Article) WithPriority(p Priority) Article {
	a.Priority = p
	return a
}

// HasImage reports whether the article references an image.
func (a Article) HasImage() bool {
	return a.ImageURL != ""
}

// PostedReason records why an article id was marked as done.
type PostedReason string

const (
	ReasonPublished PostedReason = "published"
	ReasonDuplicate PostedReason = "duplicate"
)

// PostedRecord is the idempotence gate: once a row exists the id is never processed again.
type PostedRecord struct {
	ArticleID string
	Title     string
	Category  string
	Source    string
	Reason    PostedReason
	PostedAt  time.Time
}

// Rendition is the localized form of an article.
type Rendition struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary"`
}

// TranslationRecord is a cached rendition for one (article, language) pair.
type TranslationRecord struct {
	ArticleID string
	Language  string
	Rendition Rendition
	CachedAt  time.Time
}
