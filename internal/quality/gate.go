package quality

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Classifier labels that zero the classifier share.
var rejectLabels = map[string]struct{}{
	"spam":      {},
	"clickbait": {},
	"sensitive": {},
}

// Weights are the per-signal contributions.
type Weights struct {
	Title      int
	Summary    int
	Image      int
	Source     int
	SourceCap  int
	Language   int
	Classifier int
}

// DefaultWeights sum to 100 for a reputable source.
func DefaultWeights() Weights {
	return Weights{Title: 15, Summary: 20, Image: 10, Source: 15, SourceCap: 20, Language: 10, Classifier: 30}
}

// Options configures the Gate.
type Options struct {
	Threshold         int
	MinTitleLength    int
	MinSummaryLength  int
	Weights           Weights
	SensitiveKeywords []string
	SpamKeywords      []string
	SourceWeights     map[string]float64
	MinConfidence     float64
}

// Assessment is the scoring outcome for one article.
type Assessment struct {
	Score     int
	Reasons   []string
	Sensitive bool
	Accepted  bool
}

// Gate scores candidates and rejects unsafe or low-value ones.
type Gate struct {
	opts       Options
	classifier ports.QualityClassifier
	logger     *zap.Logger
}

// NewGate builds a quality gate. classifier may be nil.
func NewGate(opts Options, classifier ports.QualityClassifier, logger *zap.Logger) *Gate {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if opts.MinTitleLength <= 0 {
		opts.MinTitleLength = 20
	}
	if opts.MinSummaryLength <= 0 {
		opts.MinSummaryLength = 100
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.SensitiveKeywords = lowerAll(opts.SensitiveKeywords)
	opts.SpamKeywords = lowerAll(opts.SpamKeywords)
	return &Gate{opts: opts, classifier: classifier, logger: logger}
}

// Score evaluates a with every signal. It never fails; a classifier error
// only degrades that signal to its neutral share.
func (g *Gate) Score(ctx context.Context, a domain.Article) Assessment {
	text := strings.ToLower(a.Title + " " + a.Summary)
	if kw, ok := containsAny(text, g.opts.SensitiveKeywords); ok {
		return Assessment{
			Score:     0,
			Reasons:   []string{fmt.Sprintf("sensitive content: %q", kw)},
			Sensitive: true,
		}
	}

	w := g.opts.Weights
	var (
		score   int
		reasons []string
	)

	if utf8.RuneCountInString(strings.TrimSpace(a.Title)) >= g.opts.MinTitleLength {
		score += w.Title
	} else {
		reasons = append(reasons, "title too short")
	}

	if utf8.RuneCountInString(strings.TrimSpace(a.Summary)) >= g.opts.MinSummaryLength {
		score += w.Summary
	} else {
		reasons = append(reasons, "summary too short")
	}

	if a.HasImage() {
		score += w.Image
	} else {
		reasons = append(reasons, "no image")
	}

	score += g.sourceShare(a.Source)

	if kw, ok := containsAny(text, g.opts.SpamKeywords); ok {
		reasons = append(reasons, fmt.Sprintf("spam keyword: %q", kw))
	} else {
		score += w.Language
	}

	share, reason := g.classifierShare(ctx, a)
	score += share
	if reason != "" {
		reasons = append(reasons, reason)
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return Assessment{
		Score:    score,
		Reasons:  reasons,
		Accepted: score >= g.opts.Threshold,
	}
}

func (g *Gate) sourceShare(source string) int {
	weight, ok := g.opts.SourceWeights[source]
	if !ok {
		weight = 1.0
	}
	share := int(float64(g.opts.Weights.Source) * weight)
	if limit := g.opts.Weights.SourceCap; limit > 0 && share > limit {
		share = limit
	}
	if share < 0 {
		share = 0
	}
	return share
}

func (g *Gate) classifierShare(ctx context.Context, a domain.Article) (int, string) {
	full := g.opts.Weights.Classifier
	if g.classifier == nil {
		return full, ""
	}
	neutral := full / 2

	res, err := g.classifier.Classify(ctx, a.Title+". "+a.Summary)
	if err != nil {
		g.logger.Warn("classifier unavailable, using neutral share", zap.String("article_id", a.ID), zap.Error(err))
		return neutral, "classifier unavailable"
	}

	label := strings.ToLower(strings.TrimSpace(res.Label))
	switch {
	case label == "news" && res.Confidence > g.opts.MinConfidence:
		return full, ""
	case isRejectLabel(label):
		return 0, fmt.Sprintf("classifier flagged %s (%.2f)", label, res.Confidence)
	default:
		return neutral, ""
	}
}

func isRejectLabel(label string) bool {
	_, ok := rejectLabels[label]
	return ok
}

func containsAny(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
