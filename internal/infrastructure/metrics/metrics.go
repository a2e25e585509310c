// Package metrics exposes pipeline counters through Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "newsrelay"

// Collector holds every NewsRelay metric on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Posts          *prometheus.CounterVec
	Skipped        *prometheus.CounterVec
	Translations   *prometheus.CounterVec
	RateLimitWaits *prometheus.HistogramVec
	RetryOutcomes  *prometheus.CounterVec
	SourceFetches  *prometheus.CounterVec
	SourceEntries  *prometheus.GaugeVec
	BreakerState   *prometheus.GaugeVec
	CycleDuration  prometheus.Histogram
}

// New registers the metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Channel post attempts by outcome.",
		}, []string{"channel", "status"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_skipped_total",
			Help:      "Articles dropped before publishing, by reason.",
		}, []string{"reason"}),
		Translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Renditions served by source.",
		}, []string{"source"}),
		RateLimitWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for channel rate-limit admission.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"channel"}),
		RetryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_outcomes_total",
			Help:      "Retry worker results per channel.",
		}, []string{"channel", "outcome"}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Feed fetches by source and result.",
		}, []string{"source", "result"}),
		SourceEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_entries",
			Help:      "Entries returned by the last fetch of a source.",
		}, []string{"source"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"breaker"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingestion cycles.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	c.registry.MustRegister(
		c.Posts, c.Skipped, c.Translations, c.RateLimitWaits, c.RetryOutcomes,
		c.SourceFetches, c.SourceEntries, c.BreakerState, c.CycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// PostResult counts one channel post outcome.
func (c *Collector) PostResult(channel, status string) {
	if c == nil {
		return
	}
	c.Posts.WithLabelValues(channel, status).Inc()
}

// ArticleSkipped counts a dropped article.
func (c *Collector) ArticleSkipped(reason string) {
	if c == nil {
		return
	}
	c.Skipped.WithLabelValues(reason).Inc()
}

// TranslationServed counts a rendition by source.
func (c *Collector) TranslationServed(source string) {
	if c == nil {
		return
	}
	c.Translations.WithLabelValues(source).Inc()
}

// RateLimitWait observes a limiter wait.
func (c *Collector) RateLimitWait(channel string, d time.Duration) {
	if c == nil {
		return
	}
	c.RateLimitWaits.WithLabelValues(channel).Observe(d.Seconds())
}

// RetryOutcome counts one processed retry entry.
func (c *Collector) RetryOutcome(channel, outcome string) {
	if c == nil {
		return
	}
	c.RetryOutcomes.WithLabelValues(channel, outcome).Inc()
}

// SourceFetched records the health of one feed fetch.
func (c *Collector) SourceFetched(source string, err error, entries int) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.SourceFetches.WithLabelValues(source, result).Inc()
	c.SourceEntries.WithLabelValues(source).Set(float64(entries))
}

// SetBreakerState publishes the numeric state of a named breaker.
func (c *Collector) SetBreakerState(name string, state int) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveCycle records one ingestion cycle duration.
func (c *Collector) ObserveCycle(d time.Duration) {
	if c == nil {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listener started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
