package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	xAPI       = "https://api.twitter.com"
	xMaxRunes  = 280
	xHashtag   = " #News"
	xSeparator = "\n\n"
)

// X posts short headlines through the v2 tweets endpoint with a user bearer
// token.
type X struct {
	name     string
	baseURL  string
	token    string
	language string
	client   *http.Client
}

var _ ports.Channel = (*X)(nil)

// NewX builds the X publisher. Language defaults to the source text.
func NewX(cfg config.ChannelConfig) *X {
	base := cfg.Endpoint
	if base == "" {
		base = xAPI
	}
	return &X{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(base, "/"),
		token:    cfg.Token,
		language: cfg.Language,
		client:   httpClient(cfg.Timeout),
	}
}

// Name implements ports.Channel.
func (x *X) Name() string {
	return x.name
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post creates one tweet.
func (x *X) Post(ctx context.Context, post ports.Post) (string, error) {
	if x.token == "" {
		return "", domain.NewPublishError(x.name, domain.ErrorBadRequest, ErrMisconfigured)
	}

	body, err := json.Marshal(map[string]string{"text": FormatX(post, x.language)})
	if err != nil {
		return "", domain.NewPublishError(x.name, domain.ErrorBadRequest, fmt.Errorf("marshal tweet: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", domain.NewPublishError(x.name, domain.ErrorBadRequest, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+x.token)
	req.Header.Set("Content-Type", "application/json")

	var resp tweetResponse
	if err := do(x.client, x.name, req, &resp); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// FormatX renders "headline\n\nlink #News", shortening the headline so the
// whole text stays within 280 runes.
func FormatX(post ports.Post, lang string) string {
	title := post.Article.Title
	if lang != "" {
		title = rendition(post, lang).Title
	}
	tail := xHashtag
	if post.Article.Link != "" {
		tail = xSeparator + post.Article.Link + xHashtag
	}
	room := xMaxRunes - utf8.RuneCountInString(tail)
	if room < 1 {
		return truncateRunes(title+tail, xMaxRunes)
	}
	return truncateRunes(title, room) + tail
}
