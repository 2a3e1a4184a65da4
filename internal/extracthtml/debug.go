package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"webnovel/internal/rules"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector prints either outer HTML or text of matches for a selector.
// This is used by the command's "-selector" debug mode.
func DebugPrintSelector(w io.Writer, html, selector string, textOnly bool) error {
	doc, err := ParseDocument(html)
	if err != nil {
		return err
	}
	sel, err := Find(doc.Selection, selector)
	if err != nil {
		return err
	}
	printMatches(w, sel, textOnly)
	return nil
}

// DebugPrintRule shows how each candidate of the rule stored under key fares
// against html: its match count after positioning, and which one wins.
// The winning selection is printed below the summary.
func DebugPrintRule(w io.Writer, html string, cfg *rules.Config, key string, textOnly bool) error {
	rule := cfg.Rule(key)
	if rule == nil {
		if v, ok := cfg.Scalar(key); ok {
			return fmt.Errorf("%s holds a scalar (%q), not a selector rule", key, v)
		}
		return fmt.Errorf("no rule for %s", key)
	}

	doc, err := ParseDocument(html)
	if err != nil {
		return err
	}

	winner := -1
	for i, cand := range rule.Selectors {
		label := cand.Query
		if cand.Position != nil {
			label = fmt.Sprintf("%s:%d", cand.Query, *cand.Position)
		}
		sel, err := Find(doc.Selection, cand.Query)
		if err != nil {
			fmt.Fprintf(w, "[%d] %s  invalid: %v\n", i, label, err)
			continue
		}
		if cand.Position != nil {
			sel = pick(sel, *cand.Position)
		}
		mark := ""
		if winner < 0 && sel.Length() > 0 {
			winner = i
			mark = "  <= winner"
		}
		fmt.Fprintf(w, "[%d] %s  matches=%d%s\n", i, label, sel.Length(), mark)
	}
	if rule.Pattern != "" {
		fmt.Fprintf(w, "pattern=%q replacement=%q\n", rule.Pattern, rule.Replacement)
	}
	fmt.Fprintln(w)

	if winner < 0 {
		return nil
	}
	if textOnly {
		fmt.Fprintln(w, ExtractText(doc.Selection, rule))
		fmt.Fprintln(w)
		return nil
	}
	printMatches(w, Select(doc.Selection, rule), false)
	return nil
}

func printMatches(w io.Writer, sel *goquery.Selection, textOnly bool) {
	sel.Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(s.Text()))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			fmt.Fprintln(w, in)
			fmt.Fprintln(w)
			return
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
}
