package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"NewsRelay/internal/domain"
)

// GetTranslation returns the cached rendition for (articleID, language).
func (s *Store) GetTranslation(ctx context.Context, articleID, language string) (domain.Rendition, bool, error) {
	row, err := s.queryRow(ctx, s.builder.
		Select("title", "body", "summary").From(tableTranslations).
		Where(sq.Eq{"article_id": articleID, "language": language}))
	if err != nil {
		return domain.Rendition{}, false, err
	}

	var r domain.Rendition
	if err := row.Scan(&r.Title, &r.Body, &r.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Rendition{}, false, nil
		}
		return domain.Rendition{}, false, fmt.Errorf("query translation: %w", err)
	}
	return r, true, nil
}

// SaveTranslation upserts rec.
func (s *Store) SaveTranslation(ctx context.Context, rec domain.TranslationRecord) error {
	_, err := s.exec(ctx, s.builder.
		Insert(tableTranslations).
		Columns("article_id", "language", "title", "body", "summary", "cached_at").
		Values(rec.ArticleID, rec.Language, rec.Rendition.Title, rec.Rendition.Body, rec.Rendition.Summary, millis(rec.CachedAt)).
		Suffix(`ON CONFLICT (article_id, language) DO UPDATE
              SET title = excluded.title,
                  body = excluded.body,
                  summary = excluded.summary,
                  cached_at = excluded.cached_at`))
	if err != nil {
		return fmt.Errorf("upsert translation: %w", err)
	}
	return nil
}
