package mssql

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"webnovel/internal/storage"

	"github.com/google/uuid"
)

func TestMergeResult(t *testing.T) {
	t.Parallel()

	if got, err := mergeResult("INSERT"); err != nil || got != storage.SaveInserted {
		t.Fatalf("INSERT -> %s, %v", got, err)
	}
	if got, err := mergeResult("UPDATE"); err != nil || got != storage.SaveUpdated {
		t.Fatalf("UPDATE -> %s, %v", got, err)
	}
	if _, err := mergeResult("DELETE"); err == nil {
		t.Fatalf("DELETE: want error")
	}
}

func TestMergeStatements(t *testing.T) {
	t.Parallel()

	params := regexp.MustCompile(`@p(\d+)`)
	highest := func(q string) int {
		n := 0
		for _, m := range params.FindAllStringSubmatch(q, -1) {
			if v, _ := strconv.Atoi(m[1]); v > n {
				n = v
			}
		}
		return n
	}
	if got := highest(mergeWorkSQL); got != 7 {
		t.Fatalf("work merge binds %d params, want 7", got)
	}
	if got := highest(mergeChapterSQL); got != 10 {
		t.Fatalf("chapter merge binds %d params, want 10", got)
	}

	for _, q := range []string{mergeWorkSQL, mergeChapterSQL} {
		if !strings.Contains(q, "WITH (HOLDLOCK)") || !strings.HasSuffix(q, ";") {
			t.Fatalf("merge must hold the key range and end with ';':\n%s", q)
		}
	}
	if !strings.Contains(mergeChapterSQL, "WHEN MATCHED AND t.body_hash <> s.body_hash") {
		t.Fatalf("chapter merge updates unchanged rows")
	}
}

// TestRepo_Integration runs against a live server when
// WEBNOVEL_TEST_MSSQL_DSN is set.
func TestRepo_Integration(t *testing.T) {
	dsn := os.Getenv("WEBNOVEL_TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("WEBNOVEL_TEST_MSSQL_DSN not set")
	}
	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: dialect, DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	url := "https://example.com/works/" + uuid.NewString()
	workID, err := repo.SaveWork(ctx, storage.WorkRecord{URL: url, Title: "t", Author: "a", Source: "tree"})
	if err != nil {
		t.Fatalf("SaveWork: %v", err)
	}
	again, err := repo.SaveWork(ctx, storage.WorkRecord{URL: url, Title: "t2", Author: "a", Source: "tree"})
	if err != nil || again != workID {
		t.Fatalf("SaveWork upsert: %s, %v (want %s)", again, err, workID)
	}

	c := storage.ChapterRecord{WorkID: workID, Seq: 1, Episode: 1, URL: url + "/1", Title: "一", Body: "b"}
	for i, want := range []storage.SaveResult{storage.SaveInserted, storage.SaveUnchanged} {
		got, err := repo.SaveChapter(ctx, c)
		if err != nil || got != want {
			t.Fatalf("save %d: got %s, %v; want %s", i, got, err, want)
		}
	}
}
