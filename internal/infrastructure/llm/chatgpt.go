package llm

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
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// ErrMisconfigured is returned when endpoint, model or key is missing.
var ErrMisconfigured = errors.New("llm renderer misconfigured")

// Renderer implements ports.Renderer over an OpenAI-compatible chat
// completions API that answers with a JSON object.
type Renderer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Renderer = (*Renderer)(nil)

// NewRenderer builds a renderer from configuration.
func NewRenderer(cfg config.LLMConfig) *Renderer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Render asks the model for a JSON rendition of title and summary in language.
func (c *Renderer) Render(ctx context.Context, title, summary, language string) (domain.Rendition, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.Rendition{}, ErrMisconfigured
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: userPrompt(title, summary, language)},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0.2,
	})
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Rendition{}, fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Rendition{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return domain.Rendition{}, errors.New("llm returned no choices")
	}
	return parseRendition(out.Choices[0].Message.Content)
}

func parseRendition(content string) (domain.Rendition, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var r domain.Rendition
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &r); err != nil {
		return domain.Rendition{}, fmt.Errorf("decode rendition: %w", err)
	}
	return r, nil
}

func userPrompt(title, summary, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following news article to %s.\n\n", language)
	fmt.Fprintf(&b, "Title: %s\nSummary: %s\n\n", title, summary)
	b.WriteString(`Answer with a JSON object with the keys "title", "body" (full translation) and "summary" (concise summary). `)
	b.WriteString("Keep numbers, dates and proper nouns unchanged.")
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a professional news translator who keeps a neutral journalistic tone."
	}
	return prompt
}
