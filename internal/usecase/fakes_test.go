package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	mu      sync.Mutex
	entries map[string][]domain.FeedEntry
	err     map[string]error
	calls   []string
}

func (f *fakeSource) FetchSource(_ context.Context, src domain.Source) ([]domain.FeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, src.Name)
	if err := f.err[src.Name]; err != nil {
		return nil, err
	}
	return f.entries[src.Name], nil
}

type fakeChannel struct {
	mu    sync.Mutex
	name  string
	err   error
	posts []ports.Post
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Post(_ context.Context, post ports.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s-%d", f.name, len(f.posts)), nil
}

func (f *fakeChannel) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeChannel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, title, summary, lang string) (domain.Rendition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Rendition{}, f.err
	}
	return domain.Rendition{Title: "[" + lang + "] " + title, Body: "[" + lang + "] " + summary, Summary: summary}, nil
}

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMT struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeMT) Translate(_ context.Context, text, lang string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return lang + ":" + text, nil
}

type memStore struct {
	mu     sync.Mutex
	posted map[string]domain.PostedRecord
}

func newMemStore() *memStore {
	return &memStore{posted: map[string]domain.PostedRecord{}}
}

func (m *memStore) IsPosted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.posted[id]
	return ok, nil
}

func (m *memStore) PostedAmong(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for _, id := range ids {
		if _, ok := m.posted[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memStore) MarkPosted(_ context.Context, rec domain.PostedRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posted[rec.ArticleID]; ok {
		return false, nil
	}
	m.posted[rec.ArticleID] = rec
	return true, nil
}

func (m *memStore) RecentTitles(_ context.Context, category string, since time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var titles []string
	for _, rec := range m.posted {
		if rec.PostedAt.Before(since) || (category != "" && rec.Category != category) {
			continue
		}
		titles = append(titles, rec.Title)
	}
	if limit > 0 && len(titles) > limit {
		titles = titles[:limit]
	}
	return titles, nil
}

func (m *memStore) PurgePosted(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.posted {
		if rec.PostedAt.Before(before) {
			delete(m.posted, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) record(id string) (domain.PostedRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posted[id]
	return rec, ok
}

// memLedger mirrors the storage state machine in memory.
type memLedger struct {
	mu      sync.Mutex
	entries map[string]domain.RetryEntry
}

var _ ports.RetryLedger = (*memLedger)(nil)

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]domain.RetryEntry{}}
}

func (m *memLedger) Enqueue(_ context.Context, e domain.RetryEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.entries {
		if cur.ArticleID == e.ArticleID && cur.Channel == e.Channel && cur.Status.Active() {
			return false, nil
		}
	}
	m.entries[e.ID] = e
	return true, nil
}

func (m *memLedger) Due(_ context.Context, now time.Time, limit int) ([]domain.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RetryEntry
	for _, e := range m.entries {
		if e.Status == domain.RetryPending && !e.NextRetryAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) Active(_ context.Context, articleID, channel string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ArticleID == articleID && e.Channel == channel && e.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

var activeStatuses = []domain.RetryStatus{domain.RetryPending, domain.RetryRetrying}

func (m *memLedger) update(id string, want []domain.RetryStatus, fn func(*domain.RetryEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if len(want) > 0 {
		match := false
		for _, s := range want {
			match = match || e.Status == s
		}
		if !match {
			return domain.ErrNotFound
		}
	}
	fn(&e)
	m.entries[id] = e
	return nil
}

func (m *memLedger) MarkRetrying(_ context.Context, id string, now time.Time) error {
	return m.update(id, []domain.RetryStatus{domain.RetryPending}, func(e *domain.RetryEntry) {
		e.Status = domain.RetryRetrying
		e.UpdatedAt = now
	})
}

func (m *memLedger) Reschedule(_ context.Context, id string, count int, next time.Time, errType domain.ErrorType, msg string, now time.Time) error {
	return m.update(id, activeStatuses, func(e *domain.RetryEntry) {
		e.Status = domain.RetryPending
		e.RetryCount = count
		e.NextRetryAt = next
		e.ErrorType = errType
		e.ErrorMessage = msg
		e.UpdatedAt = now
	})
}

func (m *memLedger) MarkSucceeded(_ context.Context, id string, now time.Time) error {
	return m.update(id, activeStatuses, func(e *domain.RetryEntry) {
		e.Status = domain.RetrySuccess
		e.UpdatedAt = now
	})
}

func (m *memLedger) MarkDead(_ context.Context, id string, count int, errType domain.ErrorType, msg string, now time.Time) error {
	return m.update(id, activeStatuses, func(e *domain.RetryEntry) {
		e.Status = domain.RetryDead
		e.RetryCount = count
		e.ErrorType = errType
		e.ErrorMessage = msg
		e.UpdatedAt = now
	})
}

func (m *memLedger) Get(_ context.Context, id string) (domain.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.RetryEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memLedger) ListByStatus(_ context.Context, status domain.RetryStatus, _ int) ([]domain.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RetryEntry
	for _, e := range m.entries {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memLedger) Requeue(_ context.Context, id string, now time.Time) error {
	err := m.update(id, []domain.RetryStatus{domain.RetryDead}, func(e *domain.RetryEntry) {
		e.Status = domain.RetryPending
		e.RetryCount = 0
		e.NextRetryAt = now
		e.UpdatedAt = now
	})
	if err != nil {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (m *memLedger) ResetStale(_ context.Context, olderThan, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.Status == domain.RetryRetrying && e.UpdatedAt.Before(olderThan) {
			e.Status = domain.RetryPending
			e.NextRetryAt = now
			e.UpdatedAt = now
			m.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (m *memLedger) PurgeTerminal(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.Status.Terminal() && e.UpdatedAt.Before(before) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *memLedger) all() []domain.RetryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RetryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

type fakeTranslationPurger struct{ before time.Time }

func (f *fakeTranslationPurger) PurgeTranslations(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return 3, nil
}
