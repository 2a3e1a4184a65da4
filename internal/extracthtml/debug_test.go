package extracthtml

import (
	"bytes"
	"strings"
	"testing"

	"webnovel/internal/rules"
)

// TestDebugPrintSelector_TextOnly verifies "-text" debug mode prints trimmed text
// and adds a blank line between matches.
func TestDebugPrintSelector_TextOnly(t *testing.T) {
	t.Parallel()

	html := `<div id="x">  A  </div><div id="x">B</div>`
	var buf bytes.Buffer

	if err := DebugPrintSelector(&buf, html, "div#x", true); err != nil {
		t.Fatalf("DebugPrintSelector: %v", err)
	}

	want := "A\n\nB\n\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\nwant=%q\ngot=%q", want, buf.String())
	}
}

// TestDebugPrintSelector_OuterHTML verifies the non-text mode prints outer HTML.
func TestDebugPrintSelector_OuterHTML(t *testing.T) {
	t.Parallel()

	html := `<div id="x"><span>Hi</span></div>`
	var buf bytes.Buffer

	if err := DebugPrintSelector(&buf, html, "div#x", false); err != nil {
		t.Fatalf("DebugPrintSelector: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `<div id="x">`) || !strings.Contains(out, `<span>Hi</span>`) {
		t.Fatalf("unexpected outer html output: %q", out)
	}
	if out[len(out)-2:] != "\n\n" {
		t.Fatalf("expected trailing blank line, got %q", out)
	}
}

func TestDebugPrintSelector_InvalidSelector(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := DebugPrintSelector(&buf, `<p>x</p>`, "p[", false); err == nil {
		t.Fatalf("expected compile error for invalid selector")
	}
}

// TestDebugPrintRule reports the winning candidate and prints its text.
func TestDebugPrintRule(t *testing.T) {
	t.Parallel()

	cfg := rules.Parse("TITLE\t.missing:0,.b:1,.c\n")
	html := `<p class="b">one</p><p class="b">two</p><p class="c">three</p>`

	var buf bytes.Buffer
	if err := DebugPrintRule(&buf, html, cfg, rules.Title, true); err != nil {
		t.Fatalf("DebugPrintRule: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"[0] .missing:0  matches=0\n",
		"[1] .b:1  matches=1  <= winner\n",
		"[2] .c  matches=1\n",
		"\ntwo\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDebugPrintRule_ScalarKey(t *testing.T) {
	t.Parallel()

	cfg := rules.Parse("PAGER_MAX\t10\n")
	var buf bytes.Buffer
	err := DebugPrintRule(&buf, `<p></p>`, cfg, rules.PagerMax, false)
	if err == nil || !strings.Contains(err.Error(), "scalar") {
		t.Fatalf("expected scalar error, got %v", err)
	}
}
