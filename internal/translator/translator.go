// Package translator produces localized renditions behind a cache and a
// circuit breaker, falling back to machine translation and finally to a
// verbatim copy.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"NewsRelay/internal/breaker"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Source tells where a rendition came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourceVerbatim Source = "verbatim"
)

// ErrMalformed marks a rendering that failed validation.
var ErrMalformed = errors.New("malformed rendition")

// Outcome is the result of one translation; Err keeps the last failure
// seen on the way to a degraded source.
type Outcome struct {
	Rendition domain.Rendition
	Source    Source
	Err       error
}

// Recorder receives one call per outcome.
type Recorder interface {
	TranslationServed(source string)
}

// Options tunes validation and the verbatim copy.
type Options struct {
	MinLengthRatio   float64
	VerbatimMaxRunes int
	Now              func() time.Time
}

// Translator wraps the cache, breaker, renderer and fallback.
type Translator struct {
	cache    ports.TranslationCache
	renderer ports.Renderer
	fallback ports.FallbackTranslator
	breaker  *breaker.Breaker
	recorder Recorder
	opts     Options
	logger   *zap.Logger
}

// Deps wires the collaborators. Renderer and Fallback may be nil.
type Deps struct {
	Cache    ports.TranslationCache
	Renderer ports.Renderer
	Fallback ports.FallbackTranslator
	Breaker  *breaker.Breaker
	Recorder Recorder
	Logger   *zap.Logger
}

// New builds a Translator.
func New(deps Deps, opts Options) *Translator {
	if opts.MinLengthRatio <= 0 {
		opts.MinLengthRatio = 0.2
	}
	if opts.VerbatimMaxRunes <= 0 {
		opts.VerbatimMaxRunes = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Breaker == nil {
		deps.Breaker = breaker.New(breaker.DefaultConfig())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Translator{
		cache:    deps.Cache,
		renderer: deps.Renderer,
		fallback: deps.Fallback,
		breaker:  deps.Breaker,
		recorder: deps.Recorder,
		opts:     opts,
		logger:   deps.Logger,
	}
}

// Translate never fails: it returns a cached, rendered, machine-translated
// or verbatim rendition in that order of preference.
func (t *Translator) Translate(ctx context.Context, a domain.Article, lang string) Outcome {
	out := t.translate(ctx, a, lang)
	if t.recorder != nil {
		t.recorder.TranslationServed(string(out.Source))
	}
	return out
}

// TranslateAll renders every language and returns renditions keyed by language.
func (t *Translator) TranslateAll(ctx context.Context, a domain.Article, langs []string) (map[string]domain.Rendition, map[string]Source) {
	renditions := make(map[string]domain.Rendition, len(langs))
	sources := make(map[string]Source, len(langs))
	for _, lang := range langs {
		out := t.Translate(ctx, a, lang)
		renditions[lang] = out.Rendition
		sources[lang] = out.Source
	}
	return renditions, sources
}

func (t *Translator) translate(ctx context.Context, a domain.Article, lang string) Outcome {
	log := t.logger.With(zap.String("article_id", a.ID), zap.String("lang", lang))

	if t.cache != nil {
		r, ok, err := t.cache.GetTranslation(ctx, a.ID, lang)
		if err != nil {
			log.Warn("translation cache read failed", zap.Error(err))
		} else if ok {
			return Outcome{Rendition: r, Source: SourceCache}
		}
	}

	var lastErr error
	if t.renderer != nil {
		if err := t.breaker.Allow(); err != nil {
			lastErr = err
			log.Debug("renderer skipped", zap.Error(err))
		} else {
			r, err := t.render(ctx, a, lang)
			if err == nil {
				t.breaker.Success()
				t.save(ctx, a.ID, lang, r, log)
				return Outcome{Rendition: r, Source: SourcePrimary}
			}
			t.breaker.Failure()
			lastErr = err
			log.Warn("renderer failed", zap.Error(err), zap.String("breaker", t.breaker.State().String()))
		}
	}

	if t.fallback != nil {
		r, err := t.machineTranslate(ctx, a, lang)
		if err == nil {
			return Outcome{Rendition: r, Source: SourceFallback, Err: lastErr}
		}
		lastErr = err
		log.Warn("fallback translator failed", zap.Error(err))
	}

	return Outcome{Rendition: t.verbatim(a), Source: SourceVerbatim, Err: lastErr}
}

func (t *Translator) render(ctx context.Context, a domain.Article, lang string) (domain.Rendition, error) {
	r, err := t.renderer.Render(ctx, a.Title, a.Summary, lang)
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("render: %w", err)
	}
	if err := t.validate(a, r); err != nil {
		return domain.Rendition{}, err
	}
	return r, nil
}

func (t *Translator) validate(a domain.Article, r domain.Rendition) error {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Body) == "" {
		return fmt.Errorf("%w: missing title or body", ErrMalformed)
	}
	src := utf8.RuneCountInString(a.Title) + utf8.RuneCountInString(a.Summary)
	got := utf8.RuneCountInString(r.Title) + utf8.RuneCountInString(r.Body)
	if float64(got) < float64(src)*t.opts.MinLengthRatio {
		return fmt.Errorf("%w: %d runes for %d source runes", ErrMalformed, got, src)
	}
	return nil
}

func (t *Translator) machineTranslate(ctx context.Context, a domain.Article, lang string) (domain.Rendition, error) {
	title, err := t.fallback.Translate(ctx, a.Title, lang)
	if err != nil {
		return domain.Rendition{}, fmt.Errorf("fallback title: %w", err)
	}
	var body string
	if strings.TrimSpace(a.Summary) != "" {
		body, err = t.fallback.Translate(ctx, a.Summary, lang)
		if err != nil {
			return domain.Rendition{}, fmt.Errorf("fallback summary: %w", err)
		}
	}
	return domain.Rendition{Title: title, Body: body, Summary: body}, nil
}

func (t *Translator) verbatim(a domain.Article) domain.Rendition {
	summary := Truncate(a.Summary, t.opts.VerbatimMaxRunes)
	return domain.Rendition{Title: a.Title, Body: summary, Summary: summary}
}

func (t *Translator) save(ctx context.Context, id, lang string, r domain.Rendition, log *zap.Logger) {
	if t.cache == nil {
		return
	}
	rec := domain.TranslationRecord{ArticleID: id, Language: lang, Rendition: r, CachedAt: t.opts.Now()}
	if err := t.cache.SaveTranslation(ctx, rec); err != nil {
		log.Warn("translation cache write failed", zap.Error(err))
	}
}

// Breaker exposes the renderer breaker for metrics.
func (t *Translator) Breaker() *breaker.Breaker {
	return t.breaker
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}
