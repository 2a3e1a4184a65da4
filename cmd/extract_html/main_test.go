package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webnovel/internal/webnovel"

	"github.com/goccy/go-json"
)

// Tests here drive run(), which installs a global zap logger, so they do
// not run in parallel.

const narouRules = "TITLE\t.novel_title:0,.p-novel__title:0\n" +
	"AUTHOR\t.novel_writername a:0,.novel_writername:0\t^作者：\n" +
	"HREF\t.index_box .subtitle a\n" +
	"SUB_UPDATE\t.index_box .long_update\n" +
	"CONTENT_SUBTITLE\t.novel_subtitle:0\n" +
	"CONTENT_PREAMBLE\t#novel_p\n" +
	"CONTENT_ARTICLE\t#novel_honbun\n"

const narouIndex = `<html><body>
<p class="novel_title">異世界の話</p>
<div class="novel_writername">作者：山田</div>
<div class="index_box">
  <dl><dd class="subtitle"><a href="/n1234ab/1/">第一話</a></dd><dt class="long_update">2024/01/01 10:00</dt></dl>
  <dl><dd class="subtitle"><a href="/n1234ab/2/">第二話</a></dd><dt class="long_update">2024/01/02 10:00</dt></dl>
</div>
</body></html>`

const narouEpisode = `<html><body>
<p class="novel_subtitle">第二話</p>
<div id="novel_p"><p>前書き</p></div>
<div id="novel_honbun"><p>本文です。</p></div>
</body></html>`

func writeRules(t *testing.T, dir, host, text string) string {
	t.Helper()
	d := filepath.Join(dir, host)
	if err := os.MkdirAll(d, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := filepath.Join(d, "extract.txt")
	if err := os.WriteFile(p, []byte(text), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return p
}

func runCmd(t *testing.T, stdin string, client *http.Client, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-log-level", "warn"}, args...), strings.NewReader(stdin), &stdout, &stderr, client)
	return code, stdout.String(), stderr.String()
}

func TestRun_StdinWorkPage(t *testing.T) {
	rulesPath := writeRules(t, t.TempDir(), "ncode.syosetu.com", narouRules)

	code, out, errOut := runCmd(t, narouIndex, http.DefaultClient,
		"-rules", rulesPath, "-page-url", "https://ncode.syosetu.com/n1234ab/")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}

	var got webnovel.WorkPage
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, out)
	}
	if got.Work.Title != "異世界の話" || got.Work.Author != "山田" || got.Work.Source != webnovel.SourceTree {
		t.Fatalf("unexpected work: %+v", got.Work)
	}
	if got.Chapters.Source != webnovel.SourceTree || len(got.Chapters.Chapters) != 2 {
		t.Fatalf("unexpected chapters: %+v", got.Chapters)
	}
	second := got.Chapters.Chapters[1]
	if second.URL != "https://ncode.syosetu.com/n1234ab/2/" || second.Episode != 2 || second.Title != "第二話" || second.Updated != "2024/01/02 10:00" {
		t.Fatalf("unexpected second chapter: %+v", second)
	}
	if got.Chapters.MaxEpisode != 2 {
		t.Fatalf("MaxEpisode=%d, want 2", got.Chapters.MaxEpisode)
	}
}

func TestRun_JSONSourcePreferred(t *testing.T) {
	rules := "TITLE\t.title:0\n" +
		"AUTHOR\t.author:0\n" +
		"JSON_SRC\tscript#__NEXT_DATA__\n" +
		"JSON_ROOT\tprops.pageProps.__APOLLO_STATE__\n" +
		"JSON_URL_VAR\tworkId\t/works/(\\d+)\n" +
		"JSON_TITLE\tWork:{workId}.title\n" +
		"JSON_AUTHOR\tWork:{workId}.author->activityName\n"
	rulesPath := writeRules(t, t.TempDir(), "kakuyomu.jp", rules)

	page := `<html><body>
<h1 class="title">CSS Title</h1><p class="author">CSS Author</p>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"__APOLLO_STATE__":{
  "Work:42":{"title":"JSON Title","author":{"__ref":"UserAccount:7"}},
  "UserAccount:7":{"activityName":"JSON Author"}
}}}}
</script></body></html>`

	code, out, errOut := runCmd(t, page, http.DefaultClient,
		"-rules", rulesPath, "-page-url", "https://kakuyomu.jp/works/42", "-mode", "work")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var w webnovel.Work
	if err := json.Unmarshal([]byte(out), &w); err != nil {
		t.Fatalf("decode: %v; out=%s", err, out)
	}
	if w.Title != "JSON Title" || w.Author != "JSON Author" || w.Source != webnovel.SourceJSON {
		t.Fatalf("unexpected work: %+v", w)
	}
}

func TestRun_DefaultsAndRaw(t *testing.T) {
	rulesPath := writeRules(t, t.TempDir(), "x", "TITLE\t.nothing:0\n")

	_, out, _ := runCmd(t, "<p>empty</p>", http.DefaultClient, "-rules", rulesPath, "-page-url", "https://x/w", "-mode", "work")
	if !strings.Contains(out, webnovel.DefaultTitle) || !strings.Contains(out, webnovel.DefaultAuthor) {
		t.Fatalf("defaults not applied: %s", out)
	}

	_, out, _ = runCmd(t, "<p>empty</p>", http.DefaultClient, "-rules", rulesPath, "-page-url", "https://x/w", "-mode", "work", "-raw")
	if strings.Contains(out, webnovel.DefaultTitle) || !strings.Contains(out, `"source": "none"`) {
		t.Fatalf("-raw output: %s", out)
	}
}

func TestRun_EpisodeMode(t *testing.T) {
	rulesPath := writeRules(t, t.TempDir(), "ncode.syosetu.com", narouRules)

	code, out, errOut := runCmd(t, narouEpisode, http.DefaultClient,
		"-rules", rulesPath, "-page-url", "https://ncode.syosetu.com/n1234ab/2/", "-mode", "episode")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var ep webnovel.Episode
	if err := json.Unmarshal([]byte(out), &ep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ep.Title != "第二話" || ep.Episode != 2 || len(ep.Blocks) != 2 {
		t.Fatalf("unexpected episode: %+v", ep)
	}
	if ep.Blocks[0].Kind != webnovel.BlockPreface || ep.Body() != "本文です。" {
		t.Fatalf("unexpected blocks: %+v", ep.Blocks)
	}
}

// TestRun_URLLooksUpRulesByHost fetches from a test server and resolves the
// rule file from <rules-dir>/<host>/extract.txt.
func TestRun_URLLooksUpRulesByHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(narouIndex))
	}))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	dir := t.TempDir()
	writeRules(t, dir, u.Hostname(), narouRules)

	code, out, errOut := runCmd(t, "", srv.Client(), "-rules-dir", dir, "-url", srv.URL+"/n1234ab/", "-mode", "chapters")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var l webnovel.ChapterList
	if err := json.Unmarshal([]byte(out), &l); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(l.Chapters) != 2 || l.Chapters[0].URL != srv.URL+"/n1234ab/1/" {
		t.Fatalf("unexpected chapters: %+v", l.Chapters)
	}
}

func TestRun_MissingRulesForHost(t *testing.T) {
	code, _, errOut := runCmd(t, narouIndex, http.DefaultClient, "-rules-dir", t.TempDir(), "-page-url", "https://unknown.example/")
	if code != 1 {
		t.Fatalf("run returned %d, want 1; stderr=%s", code, errOut)
	}
	if !strings.Contains(errOut, "no extraction rules for domain") {
		t.Fatalf("stderr does not name the missing rules: %s", errOut)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	if code, _, _ := runCmd(t, "", http.DefaultClient, "-mode", "pdf"); code != 2 {
		t.Fatalf("-mode pdf returned %d, want 2", code)
	}
	if code, _, _ := runCmd(t, narouIndex, http.DefaultClient); code != 2 {
		t.Fatalf("no rule source returned %d, want 2", code)
	}
	if code, _, _ := runCmd(t, "", http.DefaultClient, "-no-such-flag"); code != 2 {
		t.Fatalf("unknown flag returned %d, want 2", code)
	}
}

// TestRun_DebugSelectorText verifies debug selector mode prints text (not JSON).
func TestRun_DebugSelectorText(t *testing.T) {
	code, out, errOut := runCmd(t, `<div id="x">  A  </div><div id="x">B</div>`, http.DefaultClient, "-selector", "div#x", "-text")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if out != "A\n\nB\n\n" {
		t.Fatalf("unexpected debug output: %q", out)
	}
}

func TestRun_DebugKey(t *testing.T) {
	rulesPath := writeRules(t, t.TempDir(), "ncode.syosetu.com", narouRules)

	code, out, errOut := runCmd(t, narouIndex, http.DefaultClient, "-rules", rulesPath, "-key", "AUTHOR", "-text")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	for _, want := range []string{"[0] .novel_writername a:0  matches=0", "[1] .novel_writername:0  matches=1  <= winner", "山田"} {
		if !strings.Contains(out, want) {
			t.Fatalf("debug output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_Validate(t *testing.T) {
	dir := t.TempDir()

	good := writeRules(t, dir, "good", narouRules)
	if code, out, _ := runCmd(t, "", http.DefaultClient, "-rules", good, "-validate"); code != 0 || out != "" {
		t.Fatalf("valid rules: code=%d out=%q", code, out)
	}

	bad := writeRules(t, dir, "bad", "TITLE\t.ok:0,div[:0\n")
	code, out, _ := runCmd(t, "", http.DefaultClient, "-rules", bad, "-validate")
	if code != 1 || !strings.Contains(out, "error: TITLE[1]") {
		t.Fatalf("broken rules: code=%d out=%q", code, out)
	}
}

func TestRun_DirMode(t *testing.T) {
	rulesPath := writeRules(t, t.TempDir(), "ncode.syosetu.com", narouRules)

	pages := t.TempDir()
	for name, body := range map[string]string{"b.html": narouEpisode, "a.html": narouEpisode} {
		if err := os.WriteFile(filepath.Join(pages, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write page: %v", err)
		}
	}

	code, out, errOut := runCmd(t, "", http.DefaultClient,
		"-rules", rulesPath, "-dir", pages, "-mode", "episode", "-page-url", "https://ncode.syosetu.com/n1234ab/2/")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}

	var got []struct {
		SourceFile string           `json:"source_file"`
		Result     webnovel.Episode `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v; out=%s", err, out)
	}
	if len(got) != 2 || got[0].SourceFile != "a.html" || got[1].SourceFile != "b.html" {
		t.Fatalf("unexpected dir output: %+v", got)
	}
	if got[0].Result.Body() != "本文です。" {
		t.Fatalf("unexpected episode: %+v", got[0].Result)
	}
}
