package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkRecord is one archived work.
type WorkRecord struct {
	ID          uuid.UUID
	URL         string
	Title       string
	Author      string
	Description string
	Source      string
	FetchedAt   time.Time
}

// ChapterRecord is one archived episode of a work.
type ChapterRecord struct {
	ID        uuid.UUID
	WorkID    uuid.UUID
	Seq       int
	Episode   int
	URL       string
	Title     string
	Updated   string
	Body      string
	BodyHash  string
	FetchedAt time.Time
}

// SaveResult reports what SaveChapter did.
type SaveResult int

const (
	SaveInserted SaveResult = iota
	SaveUpdated
	SaveUnchanged
)

func (r SaveResult) String() string {
	switch r {
	case SaveInserted:
		return "inserted"
	case SaveUpdated:
		return "updated"
	case SaveUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

const hashSep = "\x1f"

// HashChapter returns the lowercase hex SHA-256 of a chapter's title and
// body. Leading and trailing whitespace is ignored; each part is prefixed
// with its name so a title/body boundary shift changes the hash.
func HashChapter(title, body string) string {
	h := sha256.New()
	h.Write([]byte("title="))
	h.Write([]byte(strings.TrimSpace(title)))
	h.Write([]byte(hashSep))
	h.Write([]byte("body="))
	h.Write([]byte(strings.TrimSpace(body)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeURL canonicalizes a work or chapter URL for use as a lookup key:
// surrounding space, the fragment and a trailing slash are dropped and the
// scheme and host are lowercased. Unparsable input is only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	return u.String()
}

// Prepare fills the defaults every backend relies on: an ID, a normalized
// URL and a FetchedAt stamp.
func (w *WorkRecord) Prepare(now time.Time) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.URL = NormalizeURL(w.URL)
	if w.FetchedAt.IsZero() {
		w.FetchedAt = now.UTC()
	}
}

// Prepare is the chapter counterpart of WorkRecord.Prepare; it also computes
// BodyHash when it is empty.
func (c *ChapterRecord) Prepare(now time.Time) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.URL = NormalizeURL(c.URL)
	if c.BodyHash == "" {
		c.BodyHash = HashChapter(c.Title, c.Body)
	}
	if c.FetchedAt.IsZero() {
		c.FetchedAt = now.UTC()
	}
}
