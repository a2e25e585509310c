package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/scanner"
)

// Selector option keys understood by HTMLListScanner.
const (
	OptItem      = "item"
	OptTitle     = "title"
	OptLink      = "link"
	OptSummary   = "summary"
	OptImage     = "image"
	OptDate      = "date"
	OptPageParam = "pageParam"
	OptPages     = "pages"
)

var defaultSelectors = map[string]string{
	OptItem:    "article",
	OptTitle:   "h2, h3",
	OptLink:    "a[href]",
	OptSummary: "p",
	OptImage:   "img[src]",
	OptDate:    "time[datetime]",
}

var dateExpr = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// HTMLListScanner scrapes news listing pages for sources without a feed.
// Selectors come from the source options.
type HTMLListScanner struct {
	fetcher *Fetcher
}

var _ scanner.Scanner = (*HTMLListScanner)(nil)

// NewHTMLListScanner wires the shared fetcher.
func NewHTMLListScanner(fetcher *Fetcher) *HTMLListScanner {
	return &HTMLListScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (h *HTMLListScanner) Name() string {
	return config.ScannerHTMLList
}

// Scan walks the listing pages of src and returns entries in page order.
func (h *HTMLListScanner) Scan(ctx context.Context, src domain.Source) ([]domain.FeedEntry, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("no listing url for source %s", src.Name)
	}

	pages := 1
	if v, err := strconv.Atoi(src.Options[OptPages]); err == nil && v > 1 {
		pages = v
	}
	param := src.Options[OptPageParam]
	if param == "" {
		pages = 1
	}

	var (
		results []domain.FeedEntry
		seen    = map[string]struct{}{}
	)
	for page := 1; page <= pages; page++ {
		pageURL := src.URL
		if page > 1 {
			var err error
			if pageURL, err = buildPageURL(src.URL, param, page); err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
		}

		body, err := h.fetcher.Get(ctx, pageURL)
		if errors.Is(err, ErrNotModified) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}

		pageEntries := extractEntries(doc, src.Options, baseFor(src))
		if len(pageEntries) == 0 {
			break
		}
		for _, entry := range pageEntries {
			if _, ok := seen[entry.Link]; ok {
				continue
			}
			seen[entry.Link] = struct{}{}
			results = append(results, entry)
		}
	}
	return results, nil
}

func extractEntries(doc *goquery.Document, opts map[string]string, base string) []domain.FeedEntry {
	sel := func(key string) string {
		if v := strings.TrimSpace(opts[key]); v != "" {
			return v
		}
		return defaultSelectors[key]
	}

	var collected []domain.FeedEntry
	doc.Find(sel(OptItem)).Each(func(_ int, item *goquery.Selection) {
		entry, ok := parseEntry(item, sel, base)
		if ok {
			collected = append(collected, entry)
		}
	})
	return collected
}

func parseEntry(item *goquery.Selection, sel func(string) string, base string) (domain.FeedEntry, bool) {
	title := strings.Join(strings.Fields(item.Find(sel(OptTitle)).First().Text()), " ")

	href, _ := item.Find(sel(OptLink)).First().Attr("href")
	if href == "" {
		href, _ = item.Find(sel(OptTitle)).First().Find("a[href]").Attr("href")
	}
	if title == "" || href == "" {
		return domain.FeedEntry{}, false
	}

	summary, _ := item.Find(sel(OptSummary)).First().Html()

	var image string
	if img := item.Find(sel(OptImage)).First(); img.Length() > 0 {
		image, _ = img.Attr("src")
		if lazy, ok := img.Attr("data-src"); ok && lazy != "" {
			image = lazy
		}
	}

	entry := domain.FeedEntry{
		Title:       title,
		Link:        ResolveURL(base, href),
		SummaryHTML: strings.TrimSpace(summary),
		ImageRef:    ResolveURL(base, image),
	}

	dateNode := item.Find(sel(OptDate)).First()
	dateText, _ := dateNode.Attr("datetime")
	if dateText == "" {
		dateText = dateNode.Text()
	}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(dateText)); err == nil {
		entry.PublishedAt = &ts
	} else if match := dateExpr.FindString(dateText); match != "" {
		if ts, err := time.Parse(time.DateOnly, match); err == nil {
			entry.PublishedAt = &ts
		}
	}
	return entry, true
}

func buildPageURL(base, param string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
