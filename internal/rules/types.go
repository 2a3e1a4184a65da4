// Package rules parses per-domain extraction rule files (extract.txt).
//
// A rule file is line oriented and tab delimited:
//
//	TITLE	.p-novel__title:0,.novel_title:0
//	AUTHOR	.p-novel__author a:0	作者：(.*)$	\1
//	JSON_SRC	script#__NEXT_DATA__
//
// The first field is the directive key. Keys starting with JSON_ build the
// single JSONConfig of the domain; every other key becomes either a selector
// Rule or a raw scalar value.
package rules

// Field names with a fixed meaning for the extractors.
const (
	Title       = "TITLE"
	Author      = "AUTHOR"
	Series      = "SERIES"
	Description = "DESCRIPTION"
	CoverImg    = "COVER_IMG"

	Href         = "HREF"
	SubUpdate    = "SUB_UPDATE"
	SubtitleList = "SUBTITLE_LIST"

	ContentChapter  = "CONTENT_CHAPTER"
	ContentSubtitle = "CONTENT_SUBTITLE"
	ContentArticle  = "CONTENT_ARTICLE"
	ContentPreamble = "CONTENT_PREAMBLE"
	ContentAppendix = "CONTENT_APPENDIX"
	ContentImg      = "CONTENT_IMG"

	PagerMax = "PAGER_MAX"
	Index    = "INDEX"
	LastPage = "LAST_PAGE"
)

// Selector is one fallback candidate of a Rule.
type Selector struct {
	// Query is a CSS selector.
	Query string

	// Position picks a single match. Non-negative values count from the
	// start, negative values from the end (-1 is the last match). Nil means
	// "all matches".
	Position *int
}

// Rule is an ordered list of selector candidates plus optional regex
// post-processing applied to the winning candidate's result.
type Rule struct {
	Selectors   []Selector
	Pattern     string
	Replacement string
}

// URLVar names a regex whose first capture group, matched against the page
// URL, becomes a path variable.
type URLVar struct {
	Name    string
	Pattern string
}

// JSONConfig describes where to find fields inside an embedded, normalized
// JSON object graph (for example a Next.js __NEXT_DATA__ Apollo cache).
type JSONConfig struct {
	// Src selects the element whose text is the JSON document.
	Src string

	// Root is a dotted path to the effective root object.
	Root string

	// URLVars are evaluated in declaration order.
	URLVars []URLVar

	Title       string
	Author      string
	Description string

	// Href is a path that yields chapter objects, usually ending in "->".
	Href string

	// HrefTitle is the field read from each chapter object. Empty means "title".
	HrefTitle string

	// HrefURL is a template with {var} and {field} placeholders.
	HrefURL string
}

// Entry is one non-JSON directive: either a Rule or a raw scalar.
type Entry struct {
	Rule   *Rule
	Scalar string
}

// IsRule reports whether e holds a selector rule.
func (e Entry) IsRule() bool { return e.Rule != nil }

// Config is the parsed rule file of one domain. It is not modified after
// Parse returns and is safe for concurrent readers.
type Config struct {
	keys    []string
	entries map[string]Entry
	json    *JSONConfig

	// droppedJSON records JSON_* directives discarded for lack of JSON_SRC.
	droppedJSON bool

	// unknownJSON lists JSON_* keys that name no JSONConfig field.
	unknownJSON []string
}

// Keys returns directive keys in declaration order.
func (c *Config) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Entry returns the directive stored under key.
func (c *Config) Entry(key string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[key]
	return e, ok
}

// Rule returns the selector rule for key, or nil if key is absent or holds
// a scalar.
func (c *Config) Rule(key string) *Rule {
	e, _ := c.Entry(key)
	return e.Rule
}

// Scalar returns the raw scalar value for key.
func (c *Config) Scalar(key string) (string, bool) {
	e, ok := c.Entry(key)
	if !ok || e.IsRule() {
		return "", false
	}
	return e.Scalar, true
}

// JSON returns the domain's JSON extraction config, or nil.
func (c *Config) JSON() *JSONConfig {
	if c == nil {
		return nil
	}
	return c.json
}
