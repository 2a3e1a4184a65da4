package extracthtml

import (
	"fmt"
	"regexp"
	"strings"

	"webnovel/internal/rules"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
)

// ParseDocument parses an HTML string into a queryable document.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Find compiles query and returns its matches below root.
//
// goquery's Find panics on selectors cascadia cannot compile (attribute
// regexes, unbalanced brackets); compiling first turns that into an error.
func Find(root *goquery.Selection, query string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(query)
	if err != nil {
		return root.Slice(0, 0), fmt.Errorf("compile selector %q: %w", query, err)
	}
	return root.FindMatcher(m), nil
}

// Select runs the candidate fallback procedure of rule below root and
// returns the winning candidate's selection.
//
// Candidates are tried in declared order. A candidate with a position keeps
// only that match (negative positions count from the end; out of range means
// no match). The first candidate left with at least one match wins and later
// candidates are never consulted. Invalid selectors are logged and skipped.
//
// The returned selection is empty when no candidate matched, and never nil.
func Select(root *goquery.Selection, rule *rules.Rule) *goquery.Selection {
	return selectCandidate(root, rule, true)
}

// SelectAll is Select for list-valued fields: positions are ignored, so the
// winner is the first candidate with any match and all its matches are
// returned.
func SelectAll(root *goquery.Selection, rule *rules.Rule) *goquery.Selection {
	return selectCandidate(root, rule, false)
}

func selectCandidate(root *goquery.Selection, rule *rules.Rule, positioned bool) *goquery.Selection {
	if root == nil {
		return &goquery.Selection{}
	}
	if rule == nil {
		return root.Slice(0, 0)
	}
	for _, cand := range rule.Selectors {
		sel, err := Find(root, cand.Query)
		if err != nil {
			zap.L().Warn("invalid selector skipped", zap.String("selector", cand.Query), zap.Error(err))
			continue
		}
		if positioned && cand.Position != nil {
			sel = pick(sel, *cand.Position)
		}
		if sel.Length() > 0 {
			return sel
		}
	}
	return root.Slice(0, 0)
}

func pick(sel *goquery.Selection, pos int) *goquery.Selection {
	n := sel.Length()
	if pos < 0 {
		pos += n
	}
	if pos < 0 || pos >= n {
		return sel.Slice(0, 0)
	}
	return sel.Eq(pos)
}

// ExtractElements returns the winning selection with its markup intact.
func ExtractElements(root *goquery.Selection, rule *rules.Rule) *goquery.Selection {
	return Select(root, rule)
}

// ExtractText returns the plain text of the first element of the winning
// selection, trimmed, with the rule's pattern applied. It returns "" when no
// candidate matched.
func ExtractText(root *goquery.Selection, rule *rules.Rule) string {
	sel := Select(root, rule)
	if sel.Length() == 0 {
		return ""
	}
	return ApplyPattern(strings.TrimSpace(sel.First().Text()), rule)
}

// ExtractHTML returns the inner HTML of the first element of the winning
// selection with the rule's pattern applied.
func ExtractHTML(root *goquery.Selection, rule *rules.Rule) string {
	sel := Select(root, rule)
	if sel.Length() == 0 {
		return ""
	}
	h, err := sel.First().Html()
	if err != nil {
		zap.L().Warn("render inner html", zap.Error(err))
		return ""
	}
	return ApplyPattern(strings.TrimSpace(h), rule)
}

// ExtractTexts returns the trimmed text of every element matched by the
// winning candidate, positions ignored (see SelectAll). Empty texts are
// dropped; the pattern is applied per item.
func ExtractTexts(root *goquery.Selection, rule *rules.Rule) []string {
	var out []string
	SelectAll(root, rule).Each(func(_ int, s *goquery.Selection) {
		if v := strings.TrimSpace(s.Text()); v != "" {
			out = append(out, ApplyPattern(v, rule))
		}
	})
	return out
}

// ExtractAttribute returns attr of the first element of the winning
// selection with the rule's pattern applied.
func ExtractAttribute(root *goquery.Selection, rule *rules.Rule, attr string) string {
	sel := Select(root, rule)
	if sel.Length() == 0 {
		return ""
	}
	v, ok := sel.First().Attr(attr)
	if !ok {
		return ""
	}
	return ApplyPattern(strings.TrimSpace(v), rule)
}

// ExtractAttributes returns attr for every element matched by the winning
// candidate (positions ignored) that carries a non-empty value, in document
// order.
func ExtractAttributes(root *goquery.Selection, rule *rules.Rule, attr string) []string {
	var out []string
	SelectAll(root, rule).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			out = append(out, ApplyPattern(strings.TrimSpace(v), rule))
		}
	})
	return out
}

var reBackref = regexp.MustCompile(`\\(\d+)|\$(\d+)|\$&|\$\$?`)

// ApplyPattern runs a global regex replace of rule.Pattern with
// rule.Replacement over text. An empty pattern returns text unchanged, and so
// does a pattern that fails to compile (after logging it).
//
// Replacements may use \1, $1 or $& for captured groups. Any other $ is
// literal, and $$ is a single $.
func ApplyPattern(text string, rule *rules.Rule) string {
	if rule == nil || rule.Pattern == "" || text == "" {
		return text
	}
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		zap.L().Warn("invalid pattern ignored", zap.String("pattern", rule.Pattern), zap.Error(err))
		return text
	}
	return re.ReplaceAllString(text, goReplacement(rule.Replacement))
}

// goReplacement rewrites group references to the ${n} form so a digit or
// letter following the reference is not read as part of the group name.
func goReplacement(repl string) string {
	return reBackref.ReplaceAllStringFunc(repl, func(m string) string {
		switch m {
		case "$&":
			return "${0}"
		case "$", "$$":
			return "$$"
		}
		return "${" + m[1:] + "}"
	})
}
