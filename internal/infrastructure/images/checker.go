// Package images probes remote image references before they are attached to
// a post.
package images

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/ports"
)

// Checker answers ports.ImageChecker with a HEAD request.
type Checker struct {
	http     *http.Client
	maxBytes int64
	logger   *zap.Logger
}

var _ ports.ImageChecker = (*Checker)(nil)

// NewChecker builds a checker; zero values fall back to 5 MB and 10s.
func NewChecker(cfg config.ImagesConfig, logger *zap.Logger) *Checker {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{http: &http.Client{Timeout: cfg.Timeout}, maxBytes: cfg.MaxBytes, logger: logger}
}

// Usable reports whether url answers 200 with an image content type no
// larger than the configured limit. An unknown length is accepted.
func (c *Checker) Usable(ctx context.Context, url string) bool {
	if url == "" || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("image probe failed", zap.String("url", url), zap.Error(err))
		return false
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/") {
		return false
	}
	return resp.ContentLength <= c.maxBytes
}
