package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const facebookAPI = "https://graph.facebook.com/v19.0"

// Facebook publishes to a page through the Graph API.
type Facebook struct {
	name     string
	baseURL  string
	token    string
	pageID   string
	language string
	client   *http.Client
}

var _ ports.Channel = (*Facebook)(nil)

// NewFacebook builds the page publisher.
func NewFacebook(cfg config.ChannelConfig) *Facebook {
	base := cfg.Endpoint
	if base == "" {
		base = facebookAPI
	}
	lang := cfg.Language
	if lang == "" {
		lang = "km"
	}
	return &Facebook{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(base, "/"),
		token:    cfg.Token,
		pageID:   cfg.Target,
		language: lang,
		client:   httpClient(cfg.Timeout),
	}
}

// Name implements ports.Channel.
func (f *Facebook) Name() string {
	return f.name
}

type graphResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Post uploads a photo with the message as caption when an image is
// attached, otherwise a link post on the page feed.
func (f *Facebook) Post(ctx context.Context, post ports.Post) (string, error) {
	if f.token == "" || f.pageID == "" {
		return "", domain.NewPublishError(f.name, domain.ErrorBadRequest, ErrMisconfigured)
	}

	form := url.Values{}
	form.Set("access_token", f.token)
	message := FormatFacebook(post, f.language)

	edge := "feed"
	if post.ImageURL != "" {
		edge = "photos"
		form.Set("url", post.ImageURL)
		form.Set("caption", message)
	} else {
		form.Set("message", message)
		form.Set("link", post.Article.Link)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", f.baseURL, url.PathEscape(f.pageID), edge)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.NewPublishError(f.name, domain.ErrorBadRequest, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp graphResponse
	if err := do(f.client, f.name, req, &resp); err != nil {
		return "", err
	}
	if resp.PostID != "" {
		return resp.PostID, nil
	}
	return resp.ID, nil
}

// FormatFacebook renders the localized text followed by the English summary.
func FormatFacebook(post ports.Post, lang string) string {
	r := rendition(post, lang)
	var b strings.Builder
	b.WriteString(r.Title)
	if body := strings.TrimSpace(r.Body); body != "" {
		b.WriteString("\n\n" + body)
	}
	if summary := strings.TrimSpace(post.Article.Summary); summary != "" && lang != "en" {
		b.WriteString("\n\n🇬🇧 Summary:\n" + summary)
	}
	b.WriteString("\n\n#News")
	return b.String()
}
