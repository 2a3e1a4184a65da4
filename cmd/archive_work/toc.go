package main

import (
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"webnovel/internal/webnovel"
)

// maxGapFill bounds how many chapters are synthesized between the first and
// last table of contents pages. Larger gaps are left unfilled.
const maxGapFill = 1000

// mergeChapterLists appends the chapters of tail (the last page of a
// paginated table of contents) that head does not already contain, then
// fills the gap between head's last episode and the highest episode seen by
// rewriting the trailing number of head's last URL. Synthesized chapters are
// titled "Episode N"; a gap wider than maxGapFill is skipped with a warning.
//
// Seq is renumbered over the result.
func mergeChapterLists(head, tail webnovel.ChapterList) webnovel.ChapterList {
	out := head
	out.Chapters = append([]webnovel.Chapter(nil), head.Chapters...)
	if tail.MaxEpisode > out.MaxEpisode {
		out.MaxEpisode = tail.MaxEpisode
	}

	seen := make(map[string]bool, len(out.Chapters)+len(tail.Chapters))
	for _, c := range out.Chapters {
		seen[c.URL] = true
	}

	var gap []webnovel.Chapter
	if n := len(out.Chapters); n > 0 {
		lastEp := out.Chapters[n-1].Episode
		firstTail := out.MaxEpisode + 1
		for _, c := range tail.Chapters {
			if c.Episode > 0 && c.Episode < firstTail {
				firstTail = c.Episode
			}
		}
		if missing := firstTail - lastEp - 1; lastEp > 0 && missing > maxGapFill {
			zap.L().Warn("table of contents gap too large to fill",
				zap.String("url", out.Chapters[n-1].URL),
				zap.Int("from", lastEp+1),
				zap.Int("to", firstTail-1),
				zap.Int("limit", maxGapFill))
		} else {
			for ep := lastEp + 1; lastEp > 0 && ep < firstTail; ep++ {
				u, ok := withEpisode(out.Chapters[n-1].URL, ep)
				if !ok || seen[u] {
					continue
				}
				seen[u] = true
				gap = append(gap, webnovel.Chapter{Episode: ep, URL: u, Title: fmt.Sprintf("Episode %d", ep)})
			}
		}
	}
	out.Chapters = append(out.Chapters, gap...)

	for _, c := range tail.Chapters {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out.Chapters = append(out.Chapters, c)
	}

	for i := range out.Chapters {
		out.Chapters[i].Seq = i + 1
	}
	return out
}

var reLastNumber = regexp.MustCompile(`(\d+)(/?)$`)

// withEpisode replaces the trailing episode number of rawURL with ep.
func withEpisode(rawURL string, ep int) (string, bool) {
	loc := reLastNumber.FindStringSubmatchIndex(rawURL)
	if loc == nil {
		return "", false
	}
	return rawURL[:loc[2]] + strconv.Itoa(ep) + rawURL[loc[4]:], true
}
