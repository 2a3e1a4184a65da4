package webnovel

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"webnovel/internal/extracthtml"
	"webnovel/internal/graphpath"
	"webnovel/internal/rules"

	"github.com/PuerkitoBio/goquery"
	json "github.com/goccy/go-json"
)

var (
	// ErrJSONSourceMissing means the JSON_SRC element is absent or empty.
	ErrJSONSourceMissing = errors.New("json source element not found")

	// ErrJSONParse means the JSON_SRC element does not hold valid JSON.
	ErrJSONParse = errors.New("json source is not valid json")

	// ErrJSONRootMissing means JSON_ROOT does not lead to an object.
	ErrJSONRootMissing = errors.New("json root not found")
)

// LoadJSONSource reads the element selected by js.Src, decodes its text as
// JSON (numbers kept as json.Number) and projects js.Root.
//
// All failures are returned as one of ErrJSONSourceMissing, ErrJSONParse or
// ErrJSONRootMissing (possibly wrapped) so callers can fall back.
func LoadJSONSource(root *goquery.Selection, js *rules.JSONConfig) (graphpath.Store, error) {
	if js == nil || root == nil {
		return nil, ErrJSONSourceMissing
	}
	sel, err := extracthtml.Find(root, js.Src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONSourceMissing, err)
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJSONSourceMissing, js.Src)
	}
	text := strings.TrimSpace(sel.First().Text())
	if text == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrJSONSourceMissing, js.Src)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONParse, err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after json value", ErrJSONParse)
	}

	v, ok := graphpath.DotPath(doc, js.Root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJSONRootMissing, js.Root)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrJSONRootMissing, js.Root)
	}
	return graphpath.Store(obj), nil
}

// page carries one document through an extraction call and decodes the
// JSON store at most once.
type page struct {
	root *goquery.Selection
	cfg  *rules.Config
	url  string

	loaded bool
	store  graphpath.Store
	err    error
}

func newPage(root *goquery.Selection, cfg *rules.Config, pageURL string) *page {
	return &page{root: root, cfg: cfg, url: pageURL}
}

// jsonStore returns the decoded store, or false when the domain has no JSON
// config or the source could not be loaded.
func (p *page) jsonStore() (graphpath.Store, bool) {
	js := p.cfg.JSON()
	if js == nil {
		return nil, false
	}
	if !p.loaded {
		p.loaded = true
		p.store, p.err = LoadJSONSource(p.root, js)
	}
	return p.store, p.err == nil
}
