// Package cache provides the Redis tier in front of the durable translation
// store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	keyPrefix         = "newsrelay:translation:"
	connectionTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisTranslations stores renditions as JSON values with a TTL.
type RedisTranslations struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ ports.TranslationCache = (*RedisTranslations)(nil)

// NewRedisTranslations wraps client. A zero ttl keeps keys forever.
func NewRedisTranslations(client redis.UniversalClient, ttl time.Duration) *RedisTranslations {
	return &RedisTranslations{client: client, ttl: ttl}
}

func translationKey(articleID, language string) string {
	return keyPrefix + articleID + ":" + language
}

// GetTranslation implements ports.TranslationCache.
func (r *RedisTranslations) GetTranslation(ctx context.Context, articleID, language string) (domain.Rendition, bool, error) {
	raw, err := r.client.Get(ctx, translationKey(articleID, language)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Rendition{}, false, nil
		}
		return domain.Rendition{}, false, fmt.Errorf("redis get: %w", err)
	}

	var rend domain.Rendition
	if err := json.Unmarshal(raw, &rend); err != nil {
		return domain.Rendition{}, false, fmt.Errorf("decode cached rendition: %w", err)
	}
	return rend, true, nil
}

// SaveTranslation implements ports.TranslationCache.
func (r *RedisTranslations) SaveTranslation(ctx context.Context, rec domain.TranslationRecord) error {
	raw, err := json.Marshal(rec.Rendition)
	if err != nil {
		return fmt.Errorf("encode rendition: %w", err)
	}
	if err := r.client.Set(ctx, translationKey(rec.ArticleID, rec.Language), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Tiered reads Redis first and falls back to the durable store, refilling
// Redis on a durable hit. Redis failures are logged and never surface.
type Tiered struct {
	fast    ports.TranslationCache
	durable ports.TranslationCache
	logger  *zap.Logger
}

var _ ports.TranslationCache = (*Tiered)(nil)

// NewTiered builds the two-level cache.
func NewTiered(fast, durable ports.TranslationCache, logger *zap.Logger) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{fast: fast, durable: durable, logger: logger}
}

// GetTranslation implements ports.TranslationCache.
func (t *Tiered) GetTranslation(ctx context.Context, articleID, language string) (domain.Rendition, bool, error) {
	rend, ok, err := t.fast.GetTranslation(ctx, articleID, language)
	if err != nil {
		t.logger.Warn("redis translation read failed", zap.String("article_id", articleID), zap.Error(err))
	} else if ok {
		return rend, true, nil
	}

	rend, ok, err = t.durable.GetTranslation(ctx, articleID, language)
	if err != nil || !ok {
		return rend, ok, err
	}

	rec := domain.TranslationRecord{ArticleID: articleID, Language: language, Rendition: rend, CachedAt: time.Now()}
	if err := t.fast.SaveTranslation(ctx, rec); err != nil {
		t.logger.Warn("redis translation refill failed", zap.String("article_id", articleID), zap.Error(err))
	}
	return rend, true, nil
}

// SaveTranslation writes the durable store first, then Redis.
func (t *Tiered) SaveTranslation(ctx context.Context, rec domain.TranslationRecord) error {
	if err := t.durable.SaveTranslation(ctx, rec); err != nil {
		return err
	}
	if err := t.fast.SaveTranslation(ctx, rec); err != nil {
		t.logger.Warn("redis translation write failed", zap.String("article_id", rec.ArticleID), zap.Error(err))
	}
	return nil
}
