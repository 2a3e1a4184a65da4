package extracthtml

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	reDigitGroups = regexp.MustCompile(`\d+`)
	reTrailingNum = regexp.MustCompile(`/(\d+)/?$`)
)

// ResolveHref resolves href against base, returning an absolute URL string.
// If href is invalid, it is returned unchanged.
func ResolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// ResolveHrefString is ResolveHref with a string base. An unparsable base is
// treated as absent.
func ResolveHrefString(base, href string) string {
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		b = nil
	}
	return ResolveHref(b, href)
}

// EpisodeNumber extracts the episode number from the last path segment of a
// chapter URL.
//
//	https://ncode.syosetu.com/n1234ab/12/  => 12, true
//	https://kakuyomu.jp/works/1/episodes/x => 0, false
//
// Query strings and fragments are ignored.
func EpisodeNumber(rawURL string) (int, bool) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	m := reTrailingNum.FindStringSubmatch(p)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseCountAny extracts an integer count from v.
//
// It accepts inputs like "(1 096 ...)" by joining digit groups into "1096".
// It returns ok=false when v contains no digits. Rule scalars such as
// PAGER_MAX go through here.
func ParseCountAny(v any) (count int, ok bool, err error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}

	parts := reDigitGroups.FindAllString(s, -1)
	if len(parts) == 0 {
		return 0, false, nil
	}

	n, convErr := strconv.Atoi(strings.Join(parts, ""))
	if convErr != nil {
		return 0, false, convErr
	}
	return n, true, nil
}
