package graphpath

import (
	"regexp"
	"strconv"
	"strings"

	"webnovel/internal/rules"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// URLVars matches each declared pattern against rawURL and keeps the first
// capture group under the variable's name. Patterns that fail to compile or
// match, or that capture nothing, leave the variable unset.
func URLVars(rawURL string, decls []rules.URLVar) map[string]string {
	vars := make(map[string]string, len(decls))
	for _, d := range decls {
		if d.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			zap.L().Warn("invalid url var pattern ignored", zap.String("var", d.Name), zap.String("pattern", d.Pattern), zap.Error(err))
			continue
		}
		if m := re.FindStringSubmatch(rawURL); len(m) > 1 && m[1] != "" {
			vars[d.Name] = m[1]
		}
	}
	return vars
}

// Stringify coerces a JSON value to text. Strings are returned as is,
// numbers in their literal form, booleans as true/false and null as "".
// Arrays join their stringified elements with ","; objects are rendered as
// compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// WorkInfo holds work-level fields read from the store.
type WorkInfo struct {
	Title       string
	Author      string
	Description string
}

// WorkFields evaluates the title, author and description paths of cfg.
// ok is false when both title and author come out empty; the caller is
// expected to discard the result in that case.
func WorkFields(store Store, cfg *rules.JSONConfig, pageURL string) (WorkInfo, bool) {
	if cfg == nil || store == nil {
		return WorkInfo{}, false
	}
	vars := URLVars(pageURL, cfg.URLVars)

	field := func(path string) string {
		if path == "" {
			return ""
		}
		v, _ := Eval(store, path, vars)
		return strings.TrimSpace(Stringify(v))
	}

	w := WorkInfo{
		Title:       field(cfg.Title),
		Author:      field(cfg.Author),
		Description: field(cfg.Description),
	}
	return w, w.Title != "" || w.Author != ""
}

// ChapterRef is one entry of a chapter list read from the store.
type ChapterRef struct {
	ID    string
	Title string
	URL   string
}

// ChapterList evaluates cfg.Href and turns every resulting object into a
// ChapterRef, in evaluation order.
//
// The title is read from cfg.HrefTitle (default "title"), falling back to
// "title" when that field is missing. cfg.HrefURL is rendered with {name}
// taken from the URL variables first, then {id} from the object's id, then
// any other field of the object; unknown placeholders are left as written.
// Objects with neither a URL nor an id are skipped.
func ChapterList(store Store, cfg *rules.JSONConfig, pageURL string) []ChapterRef {
	if cfg == nil || cfg.Href == "" || store == nil {
		return nil
	}
	vars := URLVars(pageURL, cfg.URLVars)

	v, ok := Eval(store, cfg.Href, vars)
	if !ok {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		items = []any{v}
	}

	titleField := cfg.HrefTitle
	if titleField == "" {
		titleField = "title"
	}

	var out []ChapterRef
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id := Stringify(obj["id"])

		t, ok := obj[titleField]
		if !ok || t == nil {
			t = obj["title"]
		}

		var u string
		if cfg.HrefURL != "" {
			u = renderTemplate(cfg.HrefURL, vars, id, obj)
		}
		if u == "" && id == "" {
			continue
		}
		out = append(out, ChapterRef{ID: id, Title: strings.TrimSpace(Stringify(t)), URL: u})
	}
	return out
}

func renderTemplate(tmpl string, vars map[string]string, id string, obj map[string]any) string {
	return rePlaceholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v := vars[name]; v != "" {
			return v
		}
		if name == "id" {
			return id
		}
		if v, ok := obj[name]; ok && v != nil {
			return Stringify(v)
		}
		return m
	})
}
