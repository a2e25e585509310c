// Package mt is the fallback machine-translation client for a
// LibreTranslate-compatible service.
package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsRelay/internal/config"
	"NewsRelay/internal/ports"
)

// Client implements ports.FallbackTranslator.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.FallbackTranslator = (*Client)(nil)

// NewClient builds the client; Timeout defaults to 15s.
func NewClient(cfg config.MTConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, http: &http.Client{Timeout: timeout}}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate converts text to language with automatic source detection.
func (c *Client) Translate(ctx context.Context, text, language string) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("machine translation endpoint not configured")
	}
	body, err := json.Marshal(translateRequest{Q: text, Source: "auto", Target: language, Format: "text", APIKey: c.apiKey})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("mt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("mt error: %s", out.Error)
	}
	if strings.TrimSpace(out.TranslatedText) == "" {
		return "", errors.New("mt returned empty text")
	}
	return out.TranslatedText, nil
}
