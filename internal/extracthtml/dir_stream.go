package extracthtml

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Encoder writes one JSON value. *json.Encoder from encoding/json and
// github.com/goccy/go-json both satisfy it.
type Encoder interface {
	Encode(v any) error
}

// PageFunc extracts one result from a saved page. Returning ok=false skips
// the file.
type PageFunc func(name string, doc *goquery.Document) (result any, ok bool)

// PageResult is one element of the StreamFromDir output array.
type PageResult struct {
	SourceFile string `json:"source_file"`
	Result     any    `json:"result"`
}

// StreamFromDir streams a single JSON array to w, emitting one PageResult
// per file in dir.
//
// Behavior:
//   - stable ordering by filename
//   - subdirectories are ignored
//   - unreadable/unparseable files are skipped (and logged)
func StreamFromDir(w io.Writer, dir string, fn PageFunc, enc Encoder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		full := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(full)
		if err != nil {
			zap.L().Warn("skip unreadable page", zap.String("file", full), zap.Error(err))
			continue
		}

		doc, err := ParseDocument(string(b))
		if err != nil {
			zap.L().Warn("skip unparsable page", zap.String("file", full), zap.Error(err))
			continue
		}

		res, ok := fn(e.Name(), doc)
		if !ok {
			continue
		}

		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if err := enc.Encode(PageResult{SourceFile: e.Name(), Result: res}); err != nil {
			return fmt.Errorf("encode %s: %w", e.Name(), err)
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}
