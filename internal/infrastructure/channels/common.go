// Package channels implements the publishing outlets.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// ErrMisconfigured is wrapped into a bad_request PublishError when a channel
// lacks its token or target.
var ErrMisconfigured = errors.New("channel misconfigured")

const defaultTimeout = 20 * time.Second

// Build constructs one Channel per configured outlet, in configuration order.
func Build(cfgs []config.ChannelConfig, logger *zap.Logger) ([]ports.Channel, error) {
	out := make([]ports.Channel, 0, len(cfgs))
	for _, cfg := range cfgs {
		switch cfg.Kind {
		case config.KindTelegram:
			out = append(out, NewTelegram(cfg, logger))
		case config.KindFacebook:
			out = append(out, NewFacebook(cfg))
		case config.KindX:
			out = append(out, NewX(cfg))
		default:
			return nil, fmt.Errorf("channel %q: unknown kind %q", cfg.Name, cfg.Kind)
		}
	}
	return out, nil
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// do sends req and decodes a JSON body into v. Transport failures become
// network errors and HTTP failures are classified by status code.
func do(client *http.Client, channel string, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.NewPublishError(channel, domain.ErrorUnknown, err)
		}
		return domain.NewPublishError(channel, domain.ErrorNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domain.NewPublishError(channel, domain.ErrorNetwork, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.NewPublishError(channel, domain.ErrorTypeForStatus(resp.StatusCode),
			fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body))))
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewPublishError(channel, domain.ErrorUnknown, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// rendition picks the rendition for lang, falling back to the source text.
func rendition(post ports.Post, lang string) domain.Rendition {
	if r, ok := post.Renditions[lang]; ok && r.Title != "" {
		if r.Body == "" {
			r.Body = post.Article.Summary
		}
		return r
	}
	return domain.Rendition{Title: post.Article.Title, Body: post.Article.Summary, Summary: post.Article.Summary}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-1]) + "…"
}
