// Command expand-hrefs turns extract-html output into a URL list, one per
// line: chapter URLs in table-of-contents order and, with -toc, the URLs of
// the remaining table-of-contents pages.
//
// Usage:
//
//	extract-html -url https://ncode.syosetu.com/n1234ab/ | expand-hrefs -toc
//	extract-html -dir ./pages -mode chapters -rules extract.txt | expand-hrefs
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"webnovel/internal/webnovel"

	"github.com/goccy/go-json"
)

// run is the testable entrypoint for this command.
//
// It parses args, reads JSON from either a file (via -file) or stdin, and writes
// deduplicated output URLs to stdout.
//
// Exit codes:
//   - 0 on success
//   - 1 on operational errors (I/O, JSON decoding, invalid -max value)
//   - 2 on invalid CLI usage (bad flags)
//
// Accepted input: a work page ({"work":…,"chapters":{…}}), a chapter list
// ({"chapters":[…]}), or the array extract-html writes in -dir mode.
//
// Edge cases:
//   - Empty chapter URLs are ignored.
//   - -max may contain spaces (e.g. "1 000") and overrides max_episode.
//   - Output is deduplicated across all emitted lines.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		filePath string
		perPage  int
		toc      bool
		maxFlag  string
	)

	fs := flag.NewFlagSet("expand_hrefs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&filePath, "file", "", "path to input JSON file (reads stdin if omitted)")
	fs.IntVar(&perPage, "count", 100, "episodes per table-of-contents page")
	fs.BoolVar(&toc, "toc", false, "also emit table-of-contents page URLs (<work url>?p=N)")
	fs.StringVar(&maxFlag, "max", "", "highest episode number (overrides max_episode from the input)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if perPage <= 0 {
		fmt.Fprintln(stderr, "-count must be > 0")
		return 2
	}

	maxEpisode := 0
	if strings.TrimSpace(maxFlag) != "" {
		n, err := parseCount(maxFlag)
		if err != nil {
			fmt.Fprintf(stderr, "bad -max %q: %v\n", maxFlag, err)
			return 1
		}
		maxEpisode = n
	}

	r := stdin
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			fmt.Fprintf(stderr, "open %q: %v\n", filePath, err)
			return 1
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	pages, err := decodePages(r)
	if err != nil {
		fmt.Fprintf(stderr, "decode json: %v\n", err)
		return 1
	}

	if err := writeExpanded(stdout, pages, expandOptions{toc: toc, perPage: perPage, maxEpisode: maxEpisode}); err != nil {
		fmt.Fprintf(stderr, "expand: %v\n", err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// page is one decoded input document.
type page struct {
	WorkURL  string
	Chapters webnovel.ChapterList
}

// decodePages decodes any of the accepted input shapes.
func decodePages(r io.Reader) ([]page, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	if b[0] != '[' {
		p, err := decodePage(b)
		if err != nil {
			return nil, err
		}
		return []page{p}, nil
	}

	var items []struct {
		SourceFile string          `json:"source_file"`
		Result     json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	out := make([]page, 0, len(items))
	for _, it := range items {
		p, err := decodePage(it.Result)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.SourceFile, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func decodePage(b []byte) (page, error) {
	var shape struct {
		Work json.RawMessage `json:"work"`
	}
	if err := json.Unmarshal(b, &shape); err != nil {
		return page{}, err
	}
	if len(shape.Work) > 0 {
		var wp webnovel.WorkPage
		if err := json.Unmarshal(b, &wp); err != nil {
			return page{}, err
		}
		return page{WorkURL: wp.Work.URL, Chapters: wp.Chapters}, nil
	}
	var l webnovel.ChapterList
	if err := json.Unmarshal(b, &l); err != nil {
		return page{}, err
	}
	return page{Chapters: l}, nil
}

type expandOptions struct {
	toc        bool
	perPage    int
	maxEpisode int
}

// writeExpanded writes the unique URL set for pages to w.
//
// For each page:
//   - emit every non-empty chapter URL
//   - with toc set and a known work URL, compute
//     pages = ceil(maxEpisode/perPage) and emit <work url>?p=<n> for n > 1
//
// Deduplication:
//   - ensures each emitted line appears at most once across the entire output.
//   - first occurrence wins; later duplicates are skipped.
func writeExpanded(w io.Writer, pages []page, opts expandOptions) error {
	seen := make(map[string]struct{})

	printUnique := func(s string) error {
		if _, ok := seen[s]; ok {
			return nil
		}
		seen[s] = struct{}{}
		_, err := fmt.Fprintln(w, s)
		return err
	}

	for i, p := range pages {
		for _, c := range p.Chapters.Chapters {
			u := strings.TrimSpace(c.URL)
			if u == "" {
				continue
			}
			if err := printUnique(u); err != nil {
				return err
			}
		}

		if !opts.toc || strings.TrimSpace(p.WorkURL) == "" {
			continue
		}
		total := p.Chapters.MaxEpisode
		if opts.maxEpisode > 0 {
			total = opts.maxEpisode
		}
		n := (total + opts.perPage - 1) / opts.perPage
		for pg := 2; pg <= n; pg++ {
			u, err := tocPageURL(p.WorkURL, pg)
			if err != nil {
				return fmt.Errorf("page %d: bad work url %q: %w", i, p.WorkURL, err)
			}
			if err := printUnique(u); err != nil {
				return err
			}
		}
	}

	return nil
}

func tocPageURL(workURL string, n int) (string, error) {
	u, err := url.Parse(strings.TrimSpace(workURL))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("p", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseCount parses a count string that may include spaces as thousand separators
// (e.g., "1 000") into an int.
//
// Errors:
//   - returns an error for empty strings or non-numeric values after space removal.
func parseCount(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	return strconv.Atoi(s)
}
