// Package postgres is the pgx-backed archive backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webnovel/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dialect = "postgres"

var timeNow = time.Now

func init() {
	storage.Register(dialect, New)
}

// Repo implements storage.Repository on a pgx connection pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool for cfg.DSN (a postgres:// URL or key=value string) and
// pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Tables {
		q, err := storage.CreateTableSQL(dialect, t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

const upsertWorkSQL = `
INSERT INTO works (id, url, title, author, description, source, fetched_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
ON CONFLICT (url) DO UPDATE SET
  title = EXCLUDED.title,
  author = EXCLUDED.author,
  description = EXCLUDED.description,
  source = EXCLUDED.source,
  fetched_at = EXCLUDED.fetched_at
RETURNING id`

func (r *Repo) SaveWork(ctx context.Context, w storage.WorkRecord) (uuid.UUID, error) {
	w.Prepare(timeNow())

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, upsertWorkSQL,
		w.ID, w.URL, w.Title, w.Author, w.Description, w.Source, w.FetchedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("postgres: save work %s: %w", w.URL, err)
	}
	return id, nil
}

func (r *Repo) FindWork(ctx context.Context, rawURL string) (storage.WorkRecord, error) {
	var (
		w    storage.WorkRecord
		desc *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, url, title, author, description, source, fetched_at FROM works WHERE url = $1`,
		storage.NormalizeURL(rawURL),
	).Scan(&w.ID, &w.URL, &w.Title, &w.Author, &desc, &w.Source, &w.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, storage.ErrNotFound
	}
	if err != nil {
		return w, fmt.Errorf("postgres: find work: %w", err)
	}
	if desc != nil {
		w.Description = *desc
	}
	return w, nil
}

// upsertChapterSQL returns no row when the stored hash already matches, and
// (xmax = 0) tells a fresh insert from an update.
const upsertChapterSQL = `
INSERT INTO chapters (id, work_id, seq, episode, url, title, updated, body, body_hash, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
ON CONFLICT (work_id, url) DO UPDATE SET
  seq = EXCLUDED.seq,
  episode = EXCLUDED.episode,
  title = EXCLUDED.title,
  updated = EXCLUDED.updated,
  body = EXCLUDED.body,
  body_hash = EXCLUDED.body_hash,
  fetched_at = EXCLUDED.fetched_at
WHERE chapters.body_hash IS DISTINCT FROM EXCLUDED.body_hash
RETURNING (xmax = 0) AS inserted`

func (r *Repo) SaveChapter(ctx context.Context, c storage.ChapterRecord) (storage.SaveResult, error) {
	c.Prepare(timeNow())

	var inserted bool
	err := r.pool.QueryRow(ctx, upsertChapterSQL,
		c.ID, c.WorkID, c.Seq, c.Episode, c.URL, c.Title, c.Updated, c.Body, c.BodyHash, c.FetchedAt,
	).Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return storage.SaveUnchanged, nil
	case err != nil:
		return 0, fmt.Errorf("postgres: save chapter %s: %w", c.URL, err)
	case inserted:
		return storage.SaveInserted, nil
	default:
		return storage.SaveUpdated, nil
	}
}

func (r *Repo) ListChapters(ctx context.Context, workID uuid.UUID) ([]storage.ChapterRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, work_id, seq, episode, url, title, COALESCE(updated, ''), body, body_hash, fetched_at
FROM chapters WHERE work_id = $1 ORDER BY seq, episode`, workID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chapters: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.ChapterRecord, error) {
		var c storage.ChapterRecord
		err := row.Scan(&c.ID, &c.WorkID, &c.Seq, &c.Episode, &c.URL, &c.Title, &c.Updated, &c.Body, &c.BodyHash, &c.FetchedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan chapters: %w", err)
	}
	return out, nil
}

var _ storage.Repository = (*Repo)(nil)
