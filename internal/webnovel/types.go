// Package webnovel turns a fetched page plus a domain's rules into work
// metadata, a chapter list or an episode body.
//
// For the work and chapter-list groups the embedded JSON store is tried
// first and the CSS rules are only used when the JSON attempt is rejected.
// The two are never mixed within one group: Source tells which one produced
// the values.
package webnovel

// Source identifies the back end that produced a field group.
type Source string

const (
	SourceNone Source = "none"
	SourceJSON Source = "json"
	SourceTree Source = "tree"
)

// Defaults applied by Work.WithDefaults.
const (
	DefaultTitle  = "無題"
	DefaultAuthor = "作者不明"
)

// Work is the metadata of a novel's top page.
type Work struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`
	Series      string `json:"series,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	Source      Source `json:"source"`
}

// WithDefaults fills an empty title or author with the domain defaults.
func (w Work) WithDefaults() Work {
	if w.Title == "" {
		w.Title = DefaultTitle
	}
	if w.Author == "" {
		w.Author = DefaultAuthor
	}
	return w
}

// Chapter is one entry of a table of contents.
type Chapter struct {
	// Seq is the 1-based position in the table of contents.
	Seq int `json:"seq"`

	// Episode is the number parsed from the URL's last path segment, 0 when
	// the URL carries none.
	Episode int    `json:"episode,omitempty"`
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Updated string `json:"updated,omitempty"`
}

// ChapterList is a table of contents in source order.
type ChapterList struct {
	Chapters []Chapter `json:"chapters"`
	Source   Source    `json:"source"`

	// LastPageURL links to the last page of a paginated table of contents.
	// It is left empty when Source is SourceJSON.
	LastPageURL string `json:"last_page_url,omitempty"`

	// MaxEpisode is the highest episode number seen.
	MaxEpisode int `json:"max_episode,omitempty"`
}

// URLs returns chapter URLs in order.
func (l ChapterList) URLs() []string {
	out := make([]string, 0, len(l.Chapters))
	for _, c := range l.Chapters {
		out = append(out, c.URL)
	}
	return out
}

// BlockKind labels a section of an episode page.
type BlockKind string

const (
	BlockPreface   BlockKind = "preface"
	BlockBody      BlockKind = "body"
	BlockAfterword BlockKind = "afterword"
)

// Block is one section of an episode with its markup and plain text.
type Block struct {
	Kind BlockKind `json:"kind"`
	HTML string    `json:"html"`
	Text string    `json:"text"`
}

// Episode is the content of one chapter page.
type Episode struct {
	URL     string   `json:"url"`
	Episode int      `json:"episode,omitempty"`
	Chapter string   `json:"chapter,omitempty"`
	Title   string   `json:"title,omitempty"`
	Blocks  []Block  `json:"blocks"`
	Images  []string `json:"images,omitempty"`
}

// Body returns the text of the body block, or "".
func (e Episode) Body() string {
	for _, b := range e.Blocks {
		if b.Kind == BlockBody {
			return b.Text
		}
	}
	return ""
}

// WorkPage is a work top page: metadata and table of contents.
type WorkPage struct {
	Work     Work        `json:"work"`
	Chapters ChapterList `json:"chapters"`
}
