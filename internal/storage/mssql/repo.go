// Package mssql is the SQL Server archive backend. Upserts are single MERGE
// statements with HOLDLOCK so concurrent archive workers cannot both insert
// the same (work_id, url).
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"webnovel/internal/storage"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb"
)

const dialect = "mssql"

var timeNow = time.Now

func init() {
	storage.Register(dialect, New)
}

// Repo implements storage.Repository on database/sql with the "sqlserver"
// driver.
type Repo struct {
	db *sql.DB
}

// New opens cfg.DSN, a sqlserver:// URL, and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

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

const mergeWorkSQL = `
MERGE dbo.works WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS id, @p2 AS url, @p3 AS title, @p4 AS author, NULLIF(@p5, N'') AS description, @p6 AS source, @p7 AS fetched_at) AS s
ON t.url = s.url
WHEN MATCHED THEN UPDATE SET
  title = s.title, author = s.author, description = s.description, source = s.source, fetched_at = s.fetched_at
WHEN NOT MATCHED THEN
  INSERT (id, url, title, author, description, source, fetched_at)
  VALUES (s.id, s.url, s.title, s.author, s.description, s.source, s.fetched_at)
OUTPUT inserted.id;`

func (r *Repo) SaveWork(ctx context.Context, w storage.WorkRecord) (uuid.UUID, error) {
	w.Prepare(timeNow())

	var id string
	err := r.db.QueryRowContext(ctx, mergeWorkSQL,
		w.ID.String(), w.URL, w.Title, w.Author, w.Description, w.Source, w.FetchedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mssql: save work %s: %w", w.URL, err)
	}
	return uuid.Parse(id)
}

func (r *Repo) FindWork(ctx context.Context, rawURL string) (storage.WorkRecord, error) {
	var (
		w    storage.WorkRecord
		id   string
		desc sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, title, author, description, source, fetched_at FROM dbo.works WHERE url = @p1`,
		storage.NormalizeURL(rawURL),
	).Scan(&id, &w.URL, &w.Title, &w.Author, &desc, &w.Source, &w.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, storage.ErrNotFound
	}
	if err != nil {
		return w, fmt.Errorf("mssql: find work: %w", err)
	}
	w.Description = desc.String
	w.ID, err = uuid.Parse(id)
	return w, err
}

// mergeChapterSQL outputs nothing when the stored hash already matches.
const mergeChapterSQL = `
MERGE dbo.chapters WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS id, @p2 AS work_id, @p3 AS seq, @p4 AS episode, @p5 AS url, @p6 AS title,
              NULLIF(@p7, N'') AS updated, @p8 AS body, @p9 AS body_hash, @p10 AS fetched_at) AS s
ON t.work_id = s.work_id AND t.url = s.url
WHEN MATCHED AND t.body_hash <> s.body_hash THEN UPDATE SET
  seq = s.seq, episode = s.episode, title = s.title, updated = s.updated,
  body = s.body, body_hash = s.body_hash, fetched_at = s.fetched_at
WHEN NOT MATCHED THEN
  INSERT (id, work_id, seq, episode, url, title, updated, body, body_hash, fetched_at)
  VALUES (s.id, s.work_id, s.seq, s.episode, s.url, s.title, s.updated, s.body, s.body_hash, s.fetched_at)
OUTPUT $action;`

func (r *Repo) SaveChapter(ctx context.Context, c storage.ChapterRecord) (storage.SaveResult, error) {
	c.Prepare(timeNow())

	var action string
	err := r.db.QueryRowContext(ctx, mergeChapterSQL,
		c.ID.String(), c.WorkID.String(), c.Seq, c.Episode, c.URL, c.Title, c.Updated, c.Body, c.BodyHash, c.FetchedAt,
	).Scan(&action)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SaveUnchanged, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mssql: save chapter %s: %w", c.URL, err)
	}
	return mergeResult(action)
}

// mergeResult maps a MERGE $action value to a SaveResult.
func mergeResult(action string) (storage.SaveResult, error) {
	switch action {
	case "INSERT":
		return storage.SaveInserted, nil
	case "UPDATE":
		return storage.SaveUpdated, nil
	default:
		return 0, fmt.Errorf("mssql: unexpected merge action %q", action)
	}
}

func (r *Repo) ListChapters(ctx context.Context, workID uuid.UUID) ([]storage.ChapterRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, work_id, seq, episode, url, title, COALESCE(updated, N''), body, body_hash, fetched_at
FROM dbo.chapters WHERE work_id = @p1 ORDER BY seq, episode`, workID.String())
	if err != nil {
		return nil, fmt.Errorf("mssql: list chapters: %w", err)
	}
	defer rows.Close()

	var out []storage.ChapterRecord
	for rows.Next() {
		var (
			c       storage.ChapterRecord
			id, wid string
		)
		if err := rows.Scan(&id, &wid, &c.Seq, &c.Episode, &c.URL, &c.Title, &c.Updated, &c.Body, &c.BodyHash, &c.FetchedAt); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if c.WorkID, err = uuid.Parse(wid); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ storage.Repository = (*Repo)(nil)
