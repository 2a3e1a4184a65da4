// Package sqlite is the embedded archive backend (modernc.org/sqlite, no cgo).
//
// Timestamps are stored as RFC3339Nano TEXT; SQLite has no timestamp type
// and the string form round-trips exactly.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"webnovel/internal/storage"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const dialect = "sqlite"

// Repo implements storage.Repository on a single SQLite database file.
type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func init() {
	storage.Register(dialect, New)
}

// New opens cfg.DSN (a file path or "file:" URI). The pool is capped at one
// connection; SQLite serializes writers anyway and this avoids SQLITE_BUSY
// between archive workers.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &Repo{db: db, now: time.Now}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Tables {
		q, err := storage.CreateTableSQL(dialect, t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) SaveWork(ctx context.Context, w storage.WorkRecord) (uuid.UUID, error) {
	w.Prepare(r.now())

	var id string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO works (id, url, title, author, description, source, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
  title = excluded.title,
  author = excluded.author,
  description = excluded.description,
  source = excluded.source,
  fetched_at = excluded.fetched_at
RETURNING id`,
		w.ID.String(), w.URL, w.Title, w.Author, nullString(w.Description), w.Source, formatTime(w.FetchedAt),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("sqlite: save work %s: %w", w.URL, err)
	}
	return uuid.Parse(id)
}

func (r *Repo) FindWork(ctx context.Context, rawURL string) (storage.WorkRecord, error) {
	var (
		w         storage.WorkRecord
		id        string
		desc      sql.NullString
		fetchedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, title, author, description, source, fetched_at FROM works WHERE url = ?`,
		storage.NormalizeURL(rawURL),
	).Scan(&id, &w.URL, &w.Title, &w.Author, &desc, &w.Source, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, storage.ErrNotFound
	}
	if err != nil {
		return w, fmt.Errorf("sqlite: find work: %w", err)
	}
	if w.ID, err = uuid.Parse(id); err != nil {
		return w, fmt.Errorf("sqlite: works.id %q: %w", id, err)
	}
	w.Description = desc.String
	if w.FetchedAt, err = parseSQLiteTime(fetchedAt); err != nil {
		return w, fmt.Errorf("sqlite: works.fetched_at: %w", err)
	}
	return w, nil
}

func (r *Repo) SaveChapter(ctx context.Context, c storage.ChapterRecord) (res storage.SaveResult, err error) {
	c.Prepare(r.now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id, hash string
	err = tx.QueryRowContext(ctx,
		`SELECT id, body_hash FROM chapters WHERE work_id = ? AND url = ?`,
		c.WorkID.String(), c.URL,
	).Scan(&id, &hash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
INSERT INTO chapters (id, work_id, seq, episode, url, title, updated, body, body_hash, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID.String(), c.WorkID.String(), c.Seq, c.Episode, c.URL, c.Title, nullString(c.Updated), c.Body, c.BodyHash, formatTime(c.FetchedAt))
		res = storage.SaveInserted
	case err != nil:
		return 0, fmt.Errorf("sqlite: lookup chapter %s: %w", c.URL, err)
	case hash == c.BodyHash:
		return storage.SaveUnchanged, tx.Commit()
	default:
		_, err = tx.ExecContext(ctx, `
UPDATE chapters
SET seq = ?, episode = ?, title = ?, updated = ?, body = ?, body_hash = ?, fetched_at = ?
WHERE id = ?`,
			c.Seq, c.Episode, c.Title, nullString(c.Updated), c.Body, c.BodyHash, formatTime(c.FetchedAt), id)
		res = storage.SaveUpdated
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: save chapter %s: %w", c.URL, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return res, nil
}

func (r *Repo) ListChapters(ctx context.Context, workID uuid.UUID) ([]storage.ChapterRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, work_id, seq, episode, url, title, updated, body, body_hash, fetched_at
FROM chapters WHERE work_id = ? ORDER BY seq, episode`, workID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list chapters: %w", err)
	}
	defer rows.Close()

	var out []storage.ChapterRecord
	for rows.Next() {
		var (
			c           storage.ChapterRecord
			id, wid, ts string
			updated     sql.NullString
		)
		if err := rows.Scan(&id, &wid, &c.Seq, &c.Episode, &c.URL, &c.Title, &updated, &c.Body, &c.BodyHash, &ts); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlite: chapters.id %q: %w", id, err)
		}
		if c.WorkID, err = uuid.Parse(wid); err != nil {
			return nil, fmt.Errorf("sqlite: chapters.work_id %q: %w", wid, err)
		}
		c.Updated = updated.String
		if c.FetchedAt, err = parseSQLiteTime(ts); err != nil {
			return nil, fmt.Errorf("sqlite: chapters.fetched_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime accepts the RFC3339 forms this package writes as well as
// SQLite's own "YYYY-MM-DD HH:MM:SS" (assumed UTC), so rows written by
// CURRENT_TIMESTAMP or the sqlite3 shell still load.
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05.999999999", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

var _ storage.Repository = (*Repo)(nil)
