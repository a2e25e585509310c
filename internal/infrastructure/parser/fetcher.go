package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"NewsRelay/internal/config"
	"NewsRelay/internal/retry"
)

// ErrNotModified is returned when the server answers 304 to a conditional GET.
var ErrNotModified = errors.New("feed not modified")

const maxFeedBytes = 10 << 20

type validators struct {
	etag         string
	lastModified string
}

// Fetcher downloads feed documents. Requests share one outbound rate
// limiter, remember ETag/Last-Modified per URL and retry with progressively
// longer timeouts.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	policy    retry.Policy
	userAgent string

	mu    sync.Mutex
	cache map[string]validators
}

// NewFetcher builds a fetcher from the fetch section of the config. A nil
// client gets a default one; per-attempt timeouts come from cfg.Timeouts.
func NewFetcher(cfg config.FetchConfig, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	policy := retry.FetchPolicy(cfg.Timeouts)
	policy.IsRetryable = func(err error) bool {
		return !errors.Is(err, ErrNotModified) && retry.DefaultIsRetryable(err)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "NewsRelay/1.0"
	}
	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		policy:    policy,
		userAgent: ua,
		cache:     map[string]validators{},
	}
}

// Get returns the body of url, or ErrNotModified when the cached validators
// still match.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.policy.Do(ctx, func(ctx context.Context, _ int) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("fetch rate limit: %w", err)
		}
		b, err := f.once(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) once(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, text/html;q=0.8, */*;q=0.5")

	f.mu.Lock()
	v, ok := f.cache[url]
	f.mu.Unlock()
	if ok {
		if v.etag != "" {
			req.Header.Set("If-None-Match", v.etag)
		}
		if v.lastModified != "" {
			req.Header.Set("If-Modified-Since", v.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return nil, ErrNotModified
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	etag, lm := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
	if etag != "" || lm != "" {
		f.mu.Lock()
		f.cache[url] = validators{etag: etag, lastModified: lm}
		f.mu.Unlock()
	}
	return body, nil
}
