package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/scanner"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Sample</title>
    <item>
      <title>PM announces new policy</title>
      <link>https://news.example.com/a</link>
      <description><![CDATA[<p>The <b>prime minister</b> said.</p><img src="/img/a.jpg">]]></description>
      <media:content url="https://cdn.example.com/a.jpg" medium="image"/>
      <pubDate>Mon, 03 Mar 2025 08:00:00 +0700</pubDate>
    </item>
    <item>
      <title>Second story</title>
      <link>https://news.example.com/b</link>
      <description><![CDATA[Text <img src="/img/b.jpg">]]></description>
    </item>
    <item>
      <title></title>
      <link>https://news.example.com/c</link>
    </item>
  </channel>
</rss>`

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{Timeouts: []time.Duration{time.Second, 2 * time.Second}, UserAgent: "test-agent"}
}

func TestParseFeed(t *testing.T) {
	t.Parallel()

	entries, err := ParseFeed([]byte(sampleRSS), "https://news.example.com")
	if err != nil {
		t.Fatalf("ParseFeed error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Title != "PM announces new policy" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.ImageRef != "https://cdn.example.com/a.jpg" {
		t.Fatalf("expected media:content image, got %s", first.ImageRef)
	}
	if first.PublishedAt == nil || first.PublishedAt.UTC().Hour() != 1 {
		t.Fatalf("unexpected published time: %v", first.PublishedAt)
	}

	if entries[1].ImageRef != "https://news.example.com/img/b.jpg" {
		t.Fatalf("expected resolved summary image, got %s", entries[1].ImageRef)
	}
}

func TestSummaryText(t *testing.T) {
	t.Parallel()

	got := SummaryText("<p>The <b>prime   minister</b>\n said.</p>", 0)
	if got != "The prime minister said." {
		t.Fatalf("unexpected summary: %q", got)
	}
	if got := SummaryText("<p>ក្រសួងសុខាភិបាល</p>", 4); got != "ក្រស" {
		t.Fatalf("expected rune truncation, got %q", got)
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/img/x.png":             "https://example.com/img/x.png",
		"img/x.png":              "https://example.com/news/img/x.png",
		"https://cdn.test/x.png": "https://cdn.test/x.png",
		"":                       "",
	}
	for ref, want := range cases {
		if got := ResolveURL("https://example.com/news/", ref); got != want {
			t.Fatalf("ResolveURL(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestFetcherConditionalGet(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	rss := NewRSSScanner(NewFetcher(testFetchConfig(), srv.Client()))
	src := domain.Source{Name: "sample", Kind: config.ScannerRSS, URL: srv.URL}

	entries, err := rss.Scan(context.Background(), src)
	if err != nil || len(entries) != 2 {
		t.Fatalf("first scan: %d entries, err %v", len(entries), err)
	}

	entries, err = rss.Scan(context.Background(), src)
	if err != nil {
		t.Fatalf("second scan error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries for 304, got %d", len(entries))
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
}

func TestFetcherRetriesWithLongerTimeout(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(testFetchConfig(), srv.Client())
	body, err := f.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(body) != "ok" || hits.Load() != 2 {
		t.Fatalf("expected retry success, body %q hits %d", body, hits.Load())
	}
}

const sampleListing = `
<html><body>
  <article>
    <h2><a href="/news/1">Flood waters recede in Kratie</a></h2>
    <time datetime="2025-03-03T08:00:00Z">3 March</time>
    <p>Residents return <b>home</b>.</p>
    <img data-src="/img/1.jpg" src="/img/placeholder.gif">
  </article>
  <article>
    <h2>No link here</h2>
  </article>
  <article>
    <h3><a href="https://other.example.com/2">Rice exports rise</a></h3>
    <span class="date">Published 2025-03-02</span>
  </article>
</body></html>`

func TestHTMLListScanner(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		pages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Query().Get("p") == "3" {
			_, _ = w.Write([]byte("<html><body></body></html>"))
			return
		}
		_, _ = w.Write([]byte(sampleListing))
	}))
	defer srv.Close()

	h := NewHTMLListScanner(NewFetcher(testFetchConfig(), srv.Client()))
	src := domain.Source{
		Name:    "listing",
		Kind:    config.ScannerHTMLList,
		URL:     srv.URL + "/latest",
		BaseURL: "https://site.example.com",
		Options: map[string]string{OptDate: "time, .date", OptPageParam: "p", OptPages: "3"},
	}

	entries, err := h.Scan(context.Background(), src)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 unique entries, got %d", len(entries))
	}
	if entries[0].Link != "https://site.example.com/news/1" {
		t.Fatalf("unexpected link: %s", entries[0].Link)
	}
	if entries[0].ImageRef != "https://site.example.com/img/1.jpg" {
		t.Fatalf("expected lazy image, got %s", entries[0].ImageRef)
	}
	if entries[0].PublishedAt == nil || entries[1].PublishedAt == nil {
		t.Fatalf("expected parsed dates")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pages) != 3 {
		t.Fatalf("expected 3 page requests, got %v", pages)
	}
}

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	u, err := buildPageURL("https://site.example.com/latest?cat=1", "page", 2)
	if err != nil {
		t.Fatalf("buildPageURL error: %v", err)
	}
	parsed, _ := url.Parse(u)
	if parsed.Query().Get("page") != "2" || parsed.Query().Get("cat") != "1" {
		t.Fatalf("unexpected query: %s", parsed.RawQuery)
	}
}

type fakeScanner struct{ entries []domain.FeedEntry }

func (f fakeScanner) Name() string { return "fake" }

func (f fakeScanner) Scan(context.Context, domain.Source) ([]domain.FeedEntry, error) {
	return f.entries, nil
}

type healthCounter struct{ calls, entries int }

func (h *healthCounter) SourceFetched(_ string, _ error, n int) {
	h.calls++
	h.entries += n
}

func TestStrategySource(t *testing.T) {
	t.Parallel()

	health := &healthCounter{}
	reg := scanner.NewRegistry(fakeScanner{entries: []domain.FeedEntry{{Title: "a", Link: "l"}}})
	src := NewStrategySource(reg, health, nil)

	entries, err := src.FetchSource(context.Background(), domain.Source{Name: "s", Kind: "fake"})
	if err != nil || len(entries) != 1 {
		t.Fatalf("FetchSource: %d entries, err %v", len(entries), err)
	}
	if health.calls != 1 || health.entries != 1 {
		t.Fatalf("unexpected health record %+v", health)
	}

	if _, err := src.FetchSource(context.Background(), domain.Source{Name: "s", Kind: "missing"}); err == nil {
		t.Fatalf("expected unknown scanner error")
	}
}
