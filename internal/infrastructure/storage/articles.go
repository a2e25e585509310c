package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsRelay/internal/domain"
)

// IsPosted reports whether a PostedRecord exists for articleID.
func (s *Store) IsPosted(ctx context.Context, articleID string) (bool, error) {
	row, err := s.queryRow(ctx, s.builder.
		Select("1").From(tablePosted).
		Where(sq.Eq{"article_id": articleID}).
		Limit(1))
	if err != nil {
		return false, err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query posted: %w", err)
	}
	return true, nil
}

// PostedAmong returns the subset of ids that already have a PostedRecord.
func (s *Store) PostedAmong(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(ids) == 0 {
		return result, nil
	}

	q := s.builder.Select("article_id").From(tablePosted)
	if s.dialect == DialectPostgres {
		q = q.Where("article_id = ANY(?)", pq.StringArray(ids))
	} else {
		q = q.Where(sq.Eq{"article_id": ids})
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query posted: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, closeRows(rows, fmt.Errorf("scan id: %w", err))
		}
		result[id] = true
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkPosted inserts rec unless the article is already recorded. The boolean
// reports whether a new row was written.
func (s *Store) MarkPosted(ctx context.Context, rec domain.PostedRecord) (bool, error) {
	reason := rec.Reason
	if reason == "" {
		reason = domain.ReasonPublished
	}
	res, err := s.exec(ctx, s.builder.
		Insert(tablePosted).
		Columns("article_id", "title", "category", "source", "reason", "posted_at").
		Values(rec.ArticleID, rec.Title, rec.Category, rec.Source, string(reason), millis(rec.PostedAt)).
		Suffix("ON CONFLICT (article_id) DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("insert posted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RecentTitles lists titles posted at or after since, newest first. An empty
// category matches every category.
func (s *Store) RecentTitles(ctx context.Context, category string, since time.Time, limit int) ([]string, error) {
	q := s.builder.Select("title").From(tablePosted).
		Where(sq.GtOrEq{"posted_at": millis(since)}).
		OrderBy("posted_at DESC")
	if category != "" {
		q = q.Where(sq.Eq{"category": category})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query recent titles: %w", err)
	}
	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, closeRows(rows, fmt.Errorf("scan title: %w", err))
		}
		titles = append(titles, title)
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return titles, nil
}

// PurgePosted removes records older than before.
func (s *Store) PurgePosted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, s.builder.Delete(tablePosted).Where(sq.Lt{"posted_at": millis(before)}))
	if err != nil {
		return 0, fmt.Errorf("purge posted: %w", err)
	}
	return res.RowsAffected()
}

// PurgeTranslations removes cached renditions older than before.
func (s *Store) PurgeTranslations(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, s.builder.Delete(tableTranslations).Where(sq.Lt{"cached_at": millis(before)}))
	if err != nil {
		return 0, fmt.Errorf("purge translations: %w", err)
	}
	return res.RowsAffected()
}
