package channels

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	telegramAPI        = "https://api.telegram.org"
	telegramCaptionMax = 1024
	telegramTextMax    = 4096
)

// Telegram posts to a channel via the bot API. It is the usual critical
// channel.
type Telegram struct {
	name     string
	baseURL  string
	botToken string
	chatID   string
	language string
	client   *http.Client
	logger   *zap.Logger
}

var _ ports.Channel = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier.
func NewTelegram(cfg config.ChannelConfig, logger *zap.Logger) *Telegram {
	base := cfg.Endpoint
	if base == "" {
		base = telegramAPI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lang := cfg.Language
	if lang == "" {
		lang = "km"
	}
	return &Telegram{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(base, "/"),
		botToken: cfg.Token,
		chatID:   cfg.Target,
		language: lang,
		client:   httpClient(cfg.Timeout),
		logger:   logger,
	}
}

// Name implements ports.Channel.
func (t *Telegram) Name() string {
	return t.name
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Post sends a photo with caption when an image is attached and the text
// fits a caption, otherwise a plain HTML message. Breaking posts are pinned.
func (t *Telegram) Post(ctx context.Context, post ports.Post) (string, error) {
	if t.botToken == "" || t.chatID == "" {
		return "", domain.NewPublishError(t.name, domain.ErrorBadRequest, ErrMisconfigured)
	}

	text := FormatTelegram(post, t.language)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("parse_mode", "HTML")

	method := "sendMessage"
	if post.ImageURL != "" && len([]rune(text)) <= telegramCaptionMax {
		method = "sendPhoto"
		form.Set("photo", post.ImageURL)
		form.Set("caption", text)
	} else {
		form.Set("text", truncateRunes(text, telegramTextMax))
	}

	var resp telegramResponse
	if err := t.call(ctx, method, form, &resp); err != nil {
		return "", err
	}
	id := strconv.FormatInt(resp.Result.MessageID, 10)

	if post.Article.Priority >= domain.PriorityBreaking {
		pin := url.Values{}
		pin.Set("chat_id", t.chatID)
		pin.Set("message_id", id)
		pin.Set("disable_notification", "false")
		if err := t.call(ctx, "pinChatMessage", pin, &telegramResponse{}); err != nil {
			t.logger.Warn("pin breaking post failed", zap.String("message_id", id), zap.Error(err))
		}
	}
	return id, nil
}

func (t *Telegram) call(ctx context.Context, method string, form url.Values, out *telegramResponse) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewPublishError(t.name, domain.ErrorBadRequest, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := do(t.client, t.name, req, out); err != nil {
		return err
	}
	if !out.OK {
		return domain.NewPublishError(t.name, domain.ErrorBadRequest, fmt.Errorf("telegram %s: %s", method, out.Description))
	}
	return nil
}

// FormatTelegram renders the HTML body: bold title, body, source link.
func FormatTelegram(post ports.Post, lang string) string {
	r := rendition(post, lang)
	var b strings.Builder
	if post.Article.Priority >= domain.PriorityBreaking {
		b.WriteString("🔴 ")
	}
	b.WriteString("<b>" + html.EscapeString(r.Title) + "</b>")
	if body := strings.TrimSpace(r.Body); body != "" {
		b.WriteString("\n\n" + html.EscapeString(body))
	}
	if post.Article.Link != "" {
		fmt.Fprintf(&b, "\n\n🔗 <a href=\"%s\">Read More</a>", html.EscapeString(post.Article.Link))
	}
	return b.String()
}
