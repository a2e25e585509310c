package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/scanner"
)

const httpPrefix = "http"

// RSSScanner reads RSS and Atom feeds.
type RSSScanner struct {
	fetcher *Fetcher
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner wires the shared fetcher.
func NewRSSScanner(fetcher *Fetcher) *RSSScanner {
	return &RSSScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return config.ScannerRSS
}

// Scan fetches src.URL and returns its items in feed order. An unchanged
// feed yields no entries and no error.
func (s *RSSScanner) Scan(ctx context.Context, src domain.Source) ([]domain.FeedEntry, error) {
	body, err := s.fetcher.Get(ctx, src.URL)
	if err != nil {
		if errors.Is(err, ErrNotModified) {
			return nil, nil
		}
		return nil, err
	}
	return ParseFeed(body, baseFor(src))
}

// ParseFeed decodes an RSS or Atom document. Items without a usable link are
// skipped.
func ParseFeed(body []byte, base string) ([]domain.FeedEntry, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]domain.FeedEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := extractLink(item)
		if link == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		entries = append(entries, domain.FeedEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        ResolveURL(base, link),
			SummaryHTML: summary,
			ImageRef:    extractImage(item, summary, base),
			PublishedAt: published,
		})
	}
	return entries, nil
}

func extractLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if strings.HasPrefix(item.GUID, httpPrefix) {
		return item.GUID
	}
	return ""
}

// extractImage prefers media:content, then media:thumbnail, an image
// enclosure, the item image and finally the first <img> of the summary.
func extractImage(item *gofeed.Item, summary, base string) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if u := ext.Attrs["url"]; u != "" {
					return ResolveURL(base, u)
				}
			}
		}
		for _, group := range media["group"] {
			for _, ext := range group.Children["content"] {
				if u := ext.Attrs["url"]; u != "" {
					return ResolveURL(base, u)
				}
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return ResolveURL(base, enc.URL)
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return ResolveURL(base, item.Image.URL)
	}
	if img := ImageFromHTML(summary, base); img != "" {
		return img
	}
	return ImageFromHTML(item.Content, base)
}

func baseFor(src domain.Source) string {
	if src.BaseURL != "" {
		return src.BaseURL
	}
	return src.URL
}
