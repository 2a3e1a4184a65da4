package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"webnovel/internal/config"
	"webnovel/internal/extracthtml"
	"webnovel/internal/metrics"
	"webnovel/internal/rules"
	"webnovel/internal/rulestore"
	"webnovel/internal/storage"
	_ "webnovel/internal/storage/all"
	"webnovel/internal/webnovel"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Chapter outcomes, also used as the metrics status label.
const (
	statusSaved     = "saved"
	statusUnchanged = "unchanged"
	statusFailed    = "failed"
	statusExtracted = "extracted" // -dry-run
)

// chapterRecord is emitted as JSONL to stdout for each chapter.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream consumers.
type chapterRecord struct {
	Timestamp string `json:"ts"`
	WorkURL   string `json:"work_url"`
	Seq       int    `json:"seq"`
	Episode   int    `json:"episode,omitempty"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Result    string `json:"result,omitempty"`
	Bytes     int    `json:"body_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// summary counts chapter outcomes of one run.
type summary struct {
	Title     string
	Saved     int
	Unchanged int
	Failed    int
	Extracted int
}

func (s summary) Total() int { return s.Saved + s.Unchanged + s.Failed + s.Extracted }

type archiver struct {
	cfg    config.Config
	dryRun bool
	limit  int

	loader *extracthtml.Loader
	rules  *rulestore.Store
	repo   storage.Repository
	now    func() time.Time

	outMu sync.Mutex
	enc   *json.Encoder
}

func newArchiver(ctx context.Context, cfg config.Config, rc runConfig, d deps) (*archiver, error) {
	a := &archiver{
		cfg:    cfg,
		dryRun: rc.DryRun,
		limit:  rc.Limit,
		loader: extracthtml.NewLoader(d.HTTPClient, cfg.Timeout,
			extracthtml.WithUserAgent(cfg.UserAgent),
			extracthtml.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseBackoff, cfg.Retry.MaxBackoff),
		),
		rules: rulestore.New(cfg.RulesDir),
		now:   d.Now,
		enc:   newLineEncoder(d.Stdout),
	}
	if a.dryRun {
		return a, nil
	}

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	a.repo = repo
	return a, nil
}

func newLineEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func (a *archiver) close() {
	if a.repo != nil {
		a.repo.Close()
	}
}

// archive runs one work end to end. An error means the work itself could not
// be processed; per-chapter failures are only counted.
func (a *archiver) archive(ctx context.Context, workURL string) (summary, error) {
	rc, err := a.rules.LoadForURL(ctx, workURL)
	if err != nil {
		return summary{}, err
	}

	page, err := a.fetchWorkPage(ctx, rc, workURL)
	if err != nil {
		return summary{}, err
	}
	work := page.Work.WithDefaults()
	sum := summary{Title: work.Title}

	chapters := page.Chapters.Chapters
	if a.limit > 0 && len(chapters) > a.limit {
		chapters = chapters[:a.limit]
	}
	if len(chapters) == 0 {
		zap.L().Warn("no chapters found", zap.String("url", workURL), zap.String("source", string(page.Chapters.Source)))
		return sum, nil
	}

	workID := uuid.Nil
	if a.repo != nil {
		workID, err = a.repo.SaveWork(ctx, storage.WorkRecord{
			URL:         workURL,
			Title:       work.Title,
			Author:      work.Author,
			Description: work.Description,
			Source:      string(page.Work.Source),
		})
		if err != nil {
			return sum, fmt.Errorf("save work: %w", err)
		}
	}
	zap.L().Info("archiving work",
		zap.String("url", workURL),
		zap.String("title", work.Title),
		zap.String("work_source", string(page.Work.Source)),
		zap.String("chapter_source", string(page.Chapters.Source)),
		zap.Int("chapters", len(chapters)),
		zap.Int("workers", a.cfg.Workers))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for _, ch := range chapters {
		g.Go(func() error {
			status := a.archiveChapter(gctx, rc, workURL, workID, ch)
			metrics.RecordChapter(status)

			mu.Lock()
			defer mu.Unlock()
			switch status {
			case statusSaved:
				sum.Saved++
			case statusUnchanged:
				sum.Unchanged++
			case statusExtracted:
				sum.Extracted++
			default:
				sum.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// fetchWorkPage extracts the top page and, when it links to a last table of
// contents page, completes the chapter list from there.
func (a *archiver) fetchWorkPage(ctx context.Context, rc *rules.Config, workURL string) (webnovel.WorkPage, error) {
	html, err := a.loader.Load(ctx, extracthtml.Input{URL: workURL})
	if err != nil {
		return webnovel.WorkPage{}, fmt.Errorf("fetch work page: %w", err)
	}
	doc, err := extracthtml.ParseDocument(html)
	if err != nil {
		return webnovel.WorkPage{}, err
	}
	page := webnovel.ExtractWorkPage(doc.Selection, rc, workURL)
	metrics.RecordExtract("work", string(page.Work.Source))
	metrics.RecordExtract("chapters", string(page.Chapters.Source))

	last := page.Chapters.LastPageURL
	if last == "" || last == workURL {
		return page, nil
	}

	lastHTML, err := a.loader.Load(ctx, extracthtml.Input{URL: last})
	if err != nil {
		// The first page alone is still a usable (partial) list.
		zap.L().Warn("fetch last toc page", zap.String("url", last), zap.Error(err))
		return page, nil
	}
	lastDoc, err := extracthtml.ParseDocument(lastHTML)
	if err != nil {
		zap.L().Warn("parse last toc page", zap.String("url", last), zap.Error(err))
		return page, nil
	}
	tail := webnovel.ExtractChapterList(lastDoc.Selection, rc, last)
	page.Chapters = mergeChapterLists(page.Chapters, tail)
	return page, nil
}

func (a *archiver) archiveChapter(ctx context.Context, rc *rules.Config, workURL string, workID uuid.UUID, ch webnovel.Chapter) string {
	rec := chapterRecord{
		WorkURL: workURL,
		Seq:     ch.Seq,
		Episode: ch.Episode,
		URL:     ch.URL,
		Title:   ch.Title,
	}
	defer func() {
		rec.Timestamp = a.now().UTC().Format("2006-01-02T15:04:05.000Z")
		a.emit(rec)
	}()

	fail := func(err error) string {
		rec.Status = statusFailed
		rec.Error = err.Error()
		zap.L().Warn("chapter failed", zap.String("url", ch.URL), zap.Int("seq", ch.Seq), zap.Error(err))
		return rec.Status
	}

	html, err := a.loader.Load(ctx, extracthtml.Input{URL: ch.URL})
	if err != nil {
		return fail(err)
	}
	doc, err := extracthtml.ParseDocument(html)
	if err != nil {
		return fail(err)
	}
	ep := webnovel.ExtractEpisode(doc.Selection, rc, ch.URL)
	body := episodeBody(ep)
	if body == "" {
		metrics.RecordExtract("episode", string(webnovel.SourceNone))
		return fail(errEmptyBody)
	}
	metrics.RecordExtract("episode", string(webnovel.SourceTree))
	rec.Bytes = len(body)
	if ep.Title != "" {
		rec.Title = ep.Title
	}

	if a.repo == nil {
		rec.Status = statusExtracted
		return rec.Status
	}

	res, err := a.repo.SaveChapter(ctx, storage.ChapterRecord{
		WorkID:  workID,
		Seq:     ch.Seq,
		Episode: ch.Episode,
		URL:     ch.URL,
		Title:   rec.Title,
		Updated: ch.Updated,
		Body:    body,
	})
	if err != nil {
		return fail(fmt.Errorf("save chapter: %w", err))
	}
	rec.Result = res.String()
	rec.Status = statusSaved
	if res == storage.SaveUnchanged {
		rec.Status = statusUnchanged
	}
	return rec.Status
}

var errEmptyBody = errors.New("episode body is empty")

// episodeBody is the stored form of an episode: the HTML of each block in
// page order, separated by a horizontal rule.
func episodeBody(ep webnovel.Episode) string {
	var parts []string
	for _, b := range ep.Blocks {
		if b.HTML != "" {
			parts = append(parts, b.HTML)
		}
	}
	if ep.Body() == "" {
		return ""
	}
	return strings.Join(parts, "\n<hr/>\n")
}

func (a *archiver) emit(rec chapterRecord) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if err := a.enc.Encode(rec); err != nil {
		zap.L().Warn("write chapter record", zap.Error(err))
	}
}
