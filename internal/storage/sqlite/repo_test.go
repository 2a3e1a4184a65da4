package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"webnovel/internal/storage"

	"github.com/google/uuid"
)

func openTemp(t *testing.T) *Repo {
	t.Helper()

	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "archive.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)

	r := repo.(*Repo)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	if err := r.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return r
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	t.Parallel()

	r := openTemp(t)
	if err := r.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestRegisteredUnderSQLite(t *testing.T) {
	t.Parallel()

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "r.db")})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	repo.Close()
}

func TestSaveWork_UpsertsByURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openTemp(t)

	first, err := r.SaveWork(ctx, storage.WorkRecord{URL: "https://kakuyomu.jp/works/1/", Title: "旧題", Author: "作者", Source: "json"})
	if err != nil {
		t.Fatalf("SaveWork: %v", err)
	}
	second, err := r.SaveWork(ctx, storage.WorkRecord{URL: "https://kakuyomu.jp/works/1", Title: "新題", Author: "作者", Description: "あらすじ", Source: "tree"})
	if err != nil {
		t.Fatalf("SaveWork again: %v", err)
	}
	if first != second {
		t.Fatalf("upsert changed the id: %s -> %s", first, second)
	}

	w, err := r.FindWork(ctx, "https://kakuyomu.jp/works/1#toc")
	if err != nil {
		t.Fatalf("FindWork: %v", err)
	}
	if w.ID != first || w.Title != "新題" || w.Description != "あらすじ" || w.Source != "tree" {
		t.Fatalf("unexpected work: %+v", w)
	}
	if !w.FetchedAt.Equal(r.now()) {
		t.Fatalf("FetchedAt=%s, want %s", w.FetchedAt, r.now())
	}

	if _, err := r.FindWork(ctx, "https://kakuyomu.jp/works/2"); err != storage.ErrNotFound {
		t.Fatalf("FindWork(missing) err=%v, want ErrNotFound", err)
	}
}

func TestSaveChapter_InsertUnchangedUpdated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openTemp(t)

	workID, err := r.SaveWork(ctx, storage.WorkRecord{URL: "https://ncode.syosetu.com/n1234ab/", Title: "t", Author: "a", Source: "tree"})
	if err != nil {
		t.Fatalf("SaveWork: %v", err)
	}

	ch := storage.ChapterRecord{WorkID: workID, Seq: 1, Episode: 1, URL: "https://ncode.syosetu.com/n1234ab/1/", Title: "第一話", Body: "<p>一</p>", Updated: "2024/01/01"}

	steps := []struct {
		body string
		want storage.SaveResult
	}{
		{"<p>一</p>", storage.SaveInserted},
		{"<p>一</p>", storage.SaveUnchanged},
		{"<p>一（改稿）</p>", storage.SaveUpdated},
		{"<p>一（改稿）</p>", storage.SaveUnchanged},
	}
	for i, st := range steps {
		c := ch
		c.Body = st.body
		got, err := r.SaveChapter(ctx, c)
		if err != nil {
			t.Fatalf("step %d: SaveChapter: %v", i, err)
		}
		if got != st.want {
			t.Fatalf("step %d: got %s, want %s", i, got, st.want)
		}
	}

	list, err := r.ListChapters(ctx, workID)
	if err != nil {
		t.Fatalf("ListChapters: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("chapters=%d, want 1", len(list))
	}
	if list[0].Body != "<p>一（改稿）</p>" || list[0].BodyHash != storage.HashChapter("第一話", "<p>一（改稿）</p>") || list[0].Updated != "2024/01/01" {
		t.Fatalf("unexpected chapter: %+v", list[0])
	}
	if list[0].URL != "https://ncode.syosetu.com/n1234ab/1" {
		t.Fatalf("URL not normalized: %q", list[0].URL)
	}
}

func TestListChapters_OrderedBySeq(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openTemp(t)

	workID, err := r.SaveWork(ctx, storage.WorkRecord{URL: "https://x/w", Title: "t", Author: "a", Source: "json"})
	if err != nil {
		t.Fatalf("SaveWork: %v", err)
	}
	for _, seq := range []int{3, 1, 2} {
		c := storage.ChapterRecord{WorkID: workID, Seq: seq, Episode: seq, URL: "https://x/w/" + string(rune('0'+seq)), Title: "t", Body: "b"}
		if _, err := r.SaveChapter(ctx, c); err != nil {
			t.Fatalf("SaveChapter %d: %v", seq, err)
		}
	}

	list, err := r.ListChapters(ctx, workID)
	if err != nil {
		t.Fatalf("ListChapters: %v", err)
	}
	for i, c := range list {
		if c.Seq != i+1 || c.WorkID != workID {
			t.Fatalf("list[%d]=%+v", i, c)
		}
	}

	other, err := r.ListChapters(ctx, uuid.New())
	if err != nil || len(other) != 0 {
		t.Fatalf("ListChapters(unknown)=%v, %v", other, err)
	}
}

func TestSaveChapter_UnknownWorkRejected(t *testing.T) {
	t.Parallel()

	r := openTemp(t)
	_, err := r.SaveChapter(context.Background(), storage.ChapterRecord{WorkID: uuid.New(), URL: "https://x/1", Title: "t", Body: "b"})
	if err == nil {
		t.Fatalf("expected foreign key violation")
	}
}

func TestParseSQLiteTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339nano", in: "2026-01-27T12:17:08.123456789Z", want: time.Date(2026, 1, 27, 12, 17, 8, 123456789, time.UTC)},
		{name: "rfc3339", in: "2026-01-27T12:17:08+09:00", want: time.Date(2026, 1, 27, 3, 17, 8, 0, time.UTC)},
		{name: "sqlite_space_tz", in: "2026-01-27 12:17:08+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "sqlite_no_tz_assume_utc", in: "2026-01-27 12:17:08", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "empty", in: "  ", wantErr: true},
		{name: "invalid", in: "not-a-time", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSQLiteTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSQLiteTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Fatalf("got=%s want=%s", got, tt.want)
			}
		})
	}
}

func TestFormatTime_RoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 1, 27, 12, 17, 8, 123, time.FixedZone("JST", 9*3600))
	got, err := parseSQLiteTime(formatTime(in))
	if err != nil {
		t.Fatalf("parseSQLiteTime(formatTime()) err=%v", err)
	}
	if !got.Equal(in) {
		t.Fatalf("round trip mismatch: got=%s want=%s", got, in)
	}
}
