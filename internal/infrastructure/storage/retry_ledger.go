package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsRelay/internal/domain"
)

var retryColumns = []string{
	"id", "article_id", "channel", "error_type", "error_message", "retry_count",
	"next_retry_at", "status", "article_snapshot", "created_at", "updated_at",
}

// activeStatuses are the only states an attempt outcome may be written over.
var activeStatuses = []string{string(domain.RetryPending), string(domain.RetryRetrying)}

// Enqueue inserts entry unless an active entry already exists for the same
// (article, channel). The boolean reports whether a row was created.
func (s *Store) Enqueue(ctx context.Context, entry domain.RetryEntry) (bool, error) {
	snapshot, err := json.Marshal(entry.Article)
	if err != nil {
		return false, fmt.Errorf("marshal article snapshot: %w", err)
	}
	res, err := s.exec(ctx, s.builder.
		Insert(tableRetries).
		Columns(retryColumns...).
		Values(
			entry.ID, entry.ArticleID, entry.Channel, string(entry.ErrorType), entry.ErrorMessage,
			entry.RetryCount, millis(entry.NextRetryAt), string(entry.Status), string(snapshot),
			millis(entry.CreatedAt), millis(entry.UpdatedAt),
		).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("insert retry entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Due lists PENDING entries whose next attempt is at or before now, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error) {
	q := s.builder.Select(retryColumns...).From(tableRetries).
		Where(sq.Eq{"status": string(domain.RetryPending)}).
		Where(sq.LtOrEq{"next_retry_at": millis(now)}).
		OrderBy("next_retry_at ASC", "created_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.listEntries(ctx, q)
}

// MarkRetrying claims a PENDING entry. It returns domain.ErrNotFound when the
// entry is missing or was claimed by someone else.
func (s *Store) MarkRetrying(ctx context.Context, id string, now time.Time) error {
	return s.execExpectOneRow(ctx, s.builder.Update(tableRetries).
		Set("status", string(domain.RetryRetrying)).
		Set("updated_at", millis(now)).
		Where(sq.Eq{"id": id, "status": string(domain.RetryPending)}),
		"mark retrying")
}

// Reschedule records a failed attempt and returns an active entry to PENDING.
// Terminal entries are left alone and reported as domain.ErrNotFound.
func (s *Store) Reschedule(ctx context.Context, id string, count int, next time.Time, errType domain.ErrorType, msg string, now time.Time) error {
	return s.execExpectOneRow(ctx, s.builder.Update(tableRetries).
		Set("status", string(domain.RetryPending)).
		Set("retry_count", count).
		Set("next_retry_at", millis(next)).
		Set("error_type", string(errType)).
		Set("error_message", msg).
		Set("updated_at", millis(now)).
		Where(sq.Eq{"id": id, "status": activeStatuses}),
		"reschedule")
}

// MarkSucceeded moves an active entry to SUCCESS.
func (s *Store) MarkSucceeded(ctx context.Context, id string, now time.Time) error {
	return s.execExpectOneRow(ctx, s.builder.Update(tableRetries).
		Set("status", string(domain.RetrySuccess)).
		Set("updated_at", millis(now)).
		Where(sq.Eq{"id": id, "status": activeStatuses}),
		"mark succeeded")
}

// MarkDead moves an active entry to DEAD with its final error.
func (s *Store) MarkDead(ctx context.Context, id string, count int, errType domain.ErrorType, msg string, now time.Time) error {
	return s.execExpectOneRow(ctx, s.builder.Update(tableRetries).
		Set("status", string(domain.RetryDead)).
		Set("retry_count", count).
		Set("error_type", string(errType)).
		Set("error_message", msg).
		Set("updated_at", millis(now)).
		Where(sq.Eq{"id": id, "status": activeStatuses}),
		"mark dead")
}

// Active reports whether (articleID, channel) has a PENDING or RETRYING entry.
func (s *Store) Active(ctx context.Context, articleID, channel string) (bool, error) {
	row, err := s.queryRow(ctx, s.builder.
		Select("1").From(tableRetries).
		Where(sq.Eq{"article_id": articleID, "channel": channel, "status": activeStatuses}).
		Limit(1))
	if err != nil {
		return false, err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query active retry: %w", err)
	}
	return true, nil
}

// Get loads one entry by id.
func (s *Store) Get(ctx context.Context, id string) (domain.RetryEntry, error) {
	entries, err := s.listEntries(ctx, s.builder.Select(retryColumns...).From(tableRetries).Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.RetryEntry{}, err
	}
	if len(entries) == 0 {
		return domain.RetryEntry{}, fmt.Errorf("retry entry %s: %w", id, domain.ErrNotFound)
	}
	return entries[0], nil
}

// ListByStatus lists entries in status, most recently updated first. An empty
// status lists every entry.
func (s *Store) ListByStatus(ctx context.Context, status domain.RetryStatus, limit int) ([]domain.RetryEntry, error) {
	q := s.builder.Select(retryColumns...).From(tableRetries).OrderBy("updated_at DESC", "id ASC")
	if status != "" {
		q = q.Where(sq.Eq{"status": string(status)})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.listEntries(ctx, q)
}

// Requeue resets a DEAD entry to PENDING with a fresh attempt budget, due now.
func (s *Store) Requeue(ctx context.Context, id string, now time.Time) error {
	res, err := s.exec(ctx, s.builder.Update(tableRetries).
		Set("status", string(domain.RetryPending)).
		Set("retry_count", 0).
		Set("next_retry_at", millis(now)).
		Set("updated_at", millis(now)).
		Where(sq.Eq{"id": id, "status": string(domain.RetryDead)}))
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	entry, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("requeue %s from %s: %w", id, entry.Status, domain.ErrInvalidTransition)
}

// ResetStale returns RETRYING entries not touched since olderThan to PENDING.
func (s *Store) ResetStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error) {
	res, err := s.exec(ctx, s.builder.Update(tableRetries).
		Set("status", string(domain.RetryPending)).
		Set("next_retry_at", millis(now)).
		Set("updated_at", millis(now)).
		Where(sq.Eq{"status": string(domain.RetryRetrying)}).
		Where(sq.Lt{"updated_at": millis(olderThan)}))
	if err != nil {
		return 0, fmt.Errorf("reset stale: %w", err)
	}
	return res.RowsAffected()
}

// PurgeTerminal deletes SUCCESS and DEAD entries last updated before before.
func (s *Store) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, s.builder.Delete(tableRetries).
		Where(sq.Eq{"status": []string{string(domain.RetrySuccess), string(domain.RetryDead)}}).
		Where(sq.Lt{"updated_at": millis(before)}))
	if err != nil {
		return 0, fmt.Errorf("purge terminal: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) execExpectOneRow(ctx context.Context, b sq.Sqlizer, op string) error {
	res, err := s.exec(ctx, b)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) listEntries(ctx context.Context, q sq.SelectBuilder) ([]domain.RetryEntry, error) {
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query retry entries: %w", err)
	}
	var entries []domain.RetryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, closeRows(rows, err)
		}
		entries = append(entries, entry)
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (domain.RetryEntry, error) {
	var (
		e                      domain.RetryEntry
		errType, status, snap  string
		next, created, updated int64
	)
	if err := rows.Scan(&e.ID, &e.ArticleID, &e.Channel, &errType, &e.ErrorMessage, &e.RetryCount,
		&next, &status, &snap, &created, &updated); err != nil {
		return domain.RetryEntry{}, fmt.Errorf("scan retry entry: %w", err)
	}
	if err := json.Unmarshal([]byte(snap), &e.Article); err != nil {
		return domain.RetryEntry{}, fmt.Errorf("decode article snapshot %s: %w", e.ID, err)
	}
	parsed, ok := domain.ParseRetryStatus(status)
	if !ok {
		return domain.RetryEntry{}, errors.New("unknown retry status " + status)
	}
	e.ErrorType = domain.ErrorType(errType)
	e.Status = parsed
	e.NextRetryAt = fromMillis(next)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return e, nil
}
