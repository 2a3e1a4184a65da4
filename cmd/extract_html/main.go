// Command extract-html applies a domain's extraction rules to one page (from
// stdin, a URL, or a directory of saved pages) and prints JSON.
//
// Usage (fetch URL; rules looked up by host under rules_dir):
//
//	extract-html -url "https://kakuyomu.jp/works/1177354054881162325"
//
// Usage (stdin; -page-url names the page for URL variables and links):
//
//	cat episode.html | extract-html -mode episode -page-url "https://ncode.syosetu.com/n1234ab/3/"
//
// Usage (explicit rule file, directory mode):
//
//	extract-html -rules web/ncode.syosetu.com/extract.txt -dir ./pages -page-url https://ncode.syosetu.com/n1234ab/
//
// Debug (print matches of a raw selector, or of every candidate of a rule):
//
//	cat page.html | extract-html -selector ".p-novel__title" -text
//	cat page.html | extract-html -rules extract.txt -key TITLE
//
// Lint a rule file:
//
//	extract-html -rules extract.txt -validate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"webnovel/internal/cliutil"
	"webnovel/internal/extracthtml"
	"webnovel/internal/metrics"
	"webnovel/internal/rules"
	"webnovel/internal/rulestore"
	"webnovel/internal/webnovel"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// Output modes.
const (
	modePage     = "page"
	modeWork     = "work"
	modeChapters = "chapters"
	modeEpisode  = "episode"
)

// run returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors (including a domain without rules)
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract-html", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Optional: path to webnovel.yaml")
	rulesPath := fs.String("rules", "", "Optional: rule file to use instead of <rules_dir>/<host>/extract.txt")
	rulesDir := fs.String("rules-dir", "", "Optional: override rules_dir from the config")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	pageURL := fs.String("page-url", "", "URL the stdin/dir input was saved from (defaults to -url)")
	mode := fs.String("mode", modePage, "Output: page (work + chapters), work, chapters, episode")
	dirFlag := fs.String("dir", "", "Optional: directory of saved pages (one result per file)")
	timeout := fs.Duration("timeout", 0, "Timeout for -url fetch (default from config)")
	noDefaults := fs.Bool("raw", false, "Do not fill an empty title/author with the defaults")
	validate := fs.Bool("validate", false, "Lint the rule file and exit")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	debugKey := fs.String("key", "", "Debug: print the matches of every candidate of a rule key")
	onlyText := fs.Bool("text", false, "Debug: print text instead of outer HTML")
	logLevel := fs.String("log-level", "", "Override log.level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	switch *mode {
	case modePage, modeWork, modeChapters, modeEpisode:
	default:
		fmt.Fprintf(stderr, "unknown -mode %q\n", *mode)
		return 2
	}

	cfg, err := cliutil.LoadConfig(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 2
	}
	if *rulesDir != "" {
		cfg.RulesDir = *rulesDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}

	stopLog, err := cliutil.StartLogging(stderr, cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	defer stopLog()
	defer cliutil.StartMetrics(ctx, cfg.Metrics, "extract_html", nil)()

	loader := extracthtml.NewLoader(httpClient, cfg.Timeout,
		extracthtml.WithUserAgent(cfg.UserAgent),
		extracthtml.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseBackoff, cfg.Retry.MaxBackoff),
	)
	loadHTML := func() (string, error) {
		return loader.Load(ctx, extracthtml.Input{URL: *urlFlag, Stdin: stdin})
	}

	// Raw selector debugging needs neither rules nor a page URL.
	if *debugSelector != "" {
		html, err := loadHTML()
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if err := extracthtml.DebugPrintSelector(stdout, html, *debugSelector, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}

	base := *pageURL
	if base == "" {
		base = *urlFlag
	}

	rc, err := loadRules(ctx, cfg.RulesDir, *rulesPath, base)
	switch {
	case errors.Is(err, errNoRuleSource):
		fmt.Fprintln(stderr, "need -rules, -url or -page-url to find the extraction rules")
		return 2
	case err != nil:
		fmt.Fprintf(stderr, "load rules: %v\n", err)
		return 1
	}

	if *validate {
		issues := rc.Validate()
		for _, iss := range issues {
			fmt.Fprintln(stdout, iss.String())
		}
		if rules.HasErrors(issues) {
			return 1
		}
		return 0
	}

	if *debugKey != "" {
		html, err := loadHTML()
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if err := extracthtml.DebugPrintRule(stdout, html, rc, *debugKey, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug rule: %v\n", err)
			return 1
		}
		return 0
	}

	extract := extractor(*mode, rc, base, !*noDefaults)

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)

	if *dirFlag != "" {
		fn := func(_ string, doc *goquery.Document) (any, bool) {
			return extract(doc.Selection), true
		}
		if err := extracthtml.StreamFromDir(stdout, *dirFlag, fn, enc); err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return 1
		}
		return 0
	}

	html, err := loadHTML()
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}
	doc, err := extracthtml.ParseDocument(html)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	enc.SetIndent("", "  ")
	if err := enc.Encode(extract(doc.Selection)); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

var errNoRuleSource = errors.New("no rule source")

// loadRules prefers an explicit rule file and otherwise looks the page's
// host up in the rule directory.
func loadRules(ctx context.Context, dir, path, pageURL string) (*rules.Config, error) {
	if path != "" {
		return rules.ParseFile(path)
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, errNoRuleSource
	}
	return rulestore.New(dir).LoadForURL(ctx, pageURL)
}

// extractor returns the extraction for mode, recording which back end
// produced each field group.
func extractor(mode string, rc *rules.Config, pageURL string, defaults bool) func(*goquery.Selection) any {
	work := func(w webnovel.Work) webnovel.Work {
		if defaults {
			return w.WithDefaults()
		}
		return w
	}

	switch mode {
	case modeWork:
		return func(root *goquery.Selection) any {
			w := webnovel.ExtractWork(root, rc, pageURL)
			metrics.RecordExtract(modeWork, string(w.Source))
			return work(w)
		}
	case modeChapters:
		return func(root *goquery.Selection) any {
			l := webnovel.ExtractChapterList(root, rc, pageURL)
			metrics.RecordExtract(modeChapters, string(l.Source))
			return l
		}
	case modeEpisode:
		return func(root *goquery.Selection) any {
			ep := webnovel.ExtractEpisode(root, rc, pageURL)
			source := webnovel.SourceTree
			if len(ep.Blocks) == 0 {
				source = webnovel.SourceNone
			}
			metrics.RecordExtract(modeEpisode, string(source))
			return ep
		}
	default:
		return func(root *goquery.Selection) any {
			p := webnovel.ExtractWorkPage(root, rc, pageURL)
			metrics.RecordExtract(modeWork, string(p.Work.Source))
			metrics.RecordExtract(modeChapters, string(p.Chapters.Source))
			zap.L().Debug("extracted work page",
				zap.String("url", pageURL),
				zap.String("work_source", string(p.Work.Source)),
				zap.Int("chapters", len(p.Chapters.Chapters)))
			p.Work = work(p.Work)
			return p
		}
	}
}
