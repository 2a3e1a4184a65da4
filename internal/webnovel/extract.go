package webnovel

import (
	"fmt"
	"strings"

	"webnovel/internal/extracthtml"
	"webnovel/internal/graphpath"
	"webnovel/internal/rules"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ExtractWork reads work metadata from root.
//
// With a JSON config, the embedded store is consulted first and its result
// is kept only when it yields a title or an author. Otherwise the TITLE,
// AUTHOR, DESCRIPTION, SERIES and COVER_IMG rules are evaluated over the same
// document. Defaults are not applied; see Work.WithDefaults.
func ExtractWork(root *goquery.Selection, cfg *rules.Config, pageURL string) Work {
	return newPage(root, cfg, pageURL).work()
}

// ExtractChapterList reads the table of contents from root, JSON first (kept
// when it yields at least one chapter), then the HREF rule.
func ExtractChapterList(root *goquery.Selection, cfg *rules.Config, pageURL string) ChapterList {
	return newPage(root, cfg, pageURL).chapters()
}

// ExtractWorkPage extracts both groups of a work top page, decoding the JSON
// source once. Each group falls back independently.
func ExtractWorkPage(root *goquery.Selection, cfg *rules.Config, pageURL string) WorkPage {
	p := newPage(root, cfg, pageURL)
	return WorkPage{Work: p.work(), Chapters: p.chapters()}
}

func (p *page) work() Work {
	if store, ok := p.jsonStore(); ok {
		if info, ok := graphpath.WorkFields(store, p.cfg.JSON(), p.url); ok {
			return Work{
				URL:         p.url,
				Title:       info.Title,
				Author:      info.Author,
				Description: info.Description,
				Source:      SourceJSON,
			}
		}
		zap.L().Debug("json work fields rejected, using css rules", zap.String("url", p.url))
	} else if p.err != nil {
		zap.L().Debug("json source unavailable, using css rules", zap.String("url", p.url), zap.Error(p.err))
	}

	w := Work{
		URL:         p.url,
		Title:       extracthtml.ExtractText(p.root, p.cfg.Rule(rules.Title)),
		Author:      extracthtml.ExtractText(p.root, p.cfg.Rule(rules.Author)),
		Description: extracthtml.ExtractText(p.root, p.cfg.Rule(rules.Description)),
		Series:      extracthtml.ExtractText(p.root, p.cfg.Rule(rules.Series)),
	}
	if src := extracthtml.ExtractAttribute(p.root, p.cfg.Rule(rules.CoverImg), "src"); src != "" {
		w.CoverURL = extracthtml.ResolveHrefString(p.url, src)
	}
	w.Source = SourceNone
	if w.Title != "" || w.Author != "" || w.Description != "" || w.Series != "" || w.CoverURL != "" {
		w.Source = SourceTree
	}
	return w
}

func (p *page) chapters() ChapterList {
	list := ChapterList{Source: SourceNone}

	if store, ok := p.jsonStore(); ok {
		refs := graphpath.ChapterList(store, p.cfg.JSON(), p.url)
		if len(refs) > 0 {
			list.Source = SourceJSON
			for i, r := range refs {
				u := r.URL
				if u != "" {
					u = extracthtml.ResolveHrefString(p.url, u)
				}
				c := Chapter{Seq: i + 1, ID: r.ID, Title: r.Title, URL: u}
				c.Episode, _ = extracthtml.EpisodeNumber(u)
				list.Chapters = append(list.Chapters, c)
			}
		} else {
			zap.L().Debug("json chapter list empty, using css rules", zap.String("url", p.url))
		}
	}

	if list.Source == SourceNone {
		list.Chapters = p.treeChapters()
		if len(list.Chapters) > 0 {
			list.Source = SourceTree
		}
	}

	// A JSON chapter list is complete; pagination only applies to the tree.
	if list.Source != SourceJSON {
		if href := extracthtml.ExtractAttribute(p.root, p.cfg.Rule(rules.LastPage), "href"); href != "" {
			list.LastPageURL = extracthtml.ResolveHrefString(p.url, href)
		}
	}
	for _, c := range list.Chapters {
		if c.Episode > list.MaxEpisode {
			list.MaxEpisode = c.Episode
		}
	}
	return list
}

// treeChapters pairs each HREF link with SUBTITLE_LIST and SUB_UPDATE
// texts. Those lists are used only when their length matches the link
// count; otherwise the link's own text is the title.
func (p *page) treeChapters() []Chapter {
	rule := p.cfg.Rule(rules.Href)
	if rule == nil {
		return nil
	}

	var out []Chapter
	extracthtml.SelectAll(p.root, rule).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		u := extracthtml.ResolveHrefString(p.url, extracthtml.ApplyPattern(strings.TrimSpace(href), rule))
		c := Chapter{Seq: len(out) + 1, URL: u, Title: strings.TrimSpace(s.Text())}
		c.Episode, _ = extracthtml.EpisodeNumber(u)
		out = append(out, c)
	})

	titles := extracthtml.ExtractTexts(p.root, p.cfg.Rule(rules.SubtitleList))
	if len(titles) == len(out) {
		for i := range out {
			out[i].Title = titles[i]
		}
	}
	updates := extracthtml.ExtractTexts(p.root, p.cfg.Rule(rules.SubUpdate))
	if len(updates) == len(out) {
		for i := range out {
			out[i].Updated = updates[i]
		}
	}

	for i := range out {
		if out[i].Title != "" {
			continue
		}
		n := out[i].Episode
		if n == 0 {
			n = out[i].Seq
		}
		out[i].Title = fmt.Sprintf("Episode %d", n)
	}
	return out
}

// ExtractEpisode reads one chapter page: chapter heading, episode title,
// preface/body/afterword blocks and inline images. Blocks whose text is
// empty are omitted.
func ExtractEpisode(root *goquery.Selection, cfg *rules.Config, pageURL string) Episode {
	ep := Episode{
		URL:     pageURL,
		Chapter: extracthtml.ExtractText(root, cfg.Rule(rules.ContentChapter)),
		Title:   extracthtml.ExtractText(root, cfg.Rule(rules.ContentSubtitle)),
	}
	ep.Episode, _ = extracthtml.EpisodeNumber(pageURL)

	for _, part := range []struct {
		key  string
		kind BlockKind
	}{
		{rules.ContentPreamble, BlockPreface},
		{rules.ContentArticle, BlockBody},
		{rules.ContentAppendix, BlockAfterword},
	} {
		if b, ok := block(root, cfg.Rule(part.key), part.kind); ok {
			ep.Blocks = append(ep.Blocks, b)
		}
	}

	for _, src := range extracthtml.ExtractAttributes(root, cfg.Rule(rules.ContentImg), "src") {
		ep.Images = append(ep.Images, extracthtml.ResolveHrefString(pageURL, src))
	}
	return ep
}

func block(root *goquery.Selection, rule *rules.Rule, kind BlockKind) (Block, bool) {
	sel := extracthtml.ExtractElements(root, rule)
	if sel.Length() == 0 {
		return Block{}, false
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return Block{}, false
	}
	html, err := sel.First().Html()
	if err != nil {
		zap.L().Warn("render block html", zap.String("kind", string(kind)), zap.Error(err))
	}
	return Block{Kind: kind, HTML: strings.TrimSpace(html), Text: text}, true
}
