package rules

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var rePosition = regexp.MustCompile(`^(.+?):(-?\d+)$`)

// ParseFile reads and parses a rule file.
func ParseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return Parse(string(b)), nil
}

// Parse turns rule-definition text into a Config. It never fails: lines it
// cannot interpret are skipped, unknown keys are kept verbatim.
//
// A non-JSON value is treated as a selector rule only when it contains '.',
// '#' or '['. Anything else (including a bare tag selector such as "body")
// is stored as a scalar.
func Parse(text string) *Config {
	cfg := &Config{entries: make(map[string]Entry)}

	var js *JSONConfig
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSpace(fields[0])
		value := strings.TrimSpace(fields[1])
		extra := field(fields, 2)

		if strings.HasPrefix(key, "JSON_") {
			if js == nil {
				js = &JSONConfig{}
			}
			if !applyJSONDirective(js, key, value, extra) {
				cfg.unknownJSON = append(cfg.unknownJSON, key)
			}
			continue
		}

		if !looksLikeSelector(value) {
			cfg.set(key, Entry{Scalar: value})
			continue
		}

		selectors := ParseSelectorField(value)
		if len(selectors) == 0 {
			continue
		}
		cfg.set(key, Entry{Rule: &Rule{
			Selectors:   selectors,
			Pattern:     extra,
			Replacement: field(fields, 3),
		}})
	}

	if js != nil {
		if js.Src != "" {
			cfg.json = js
		} else {
			cfg.droppedJSON = true
		}
	}
	return cfg
}

// ParseSelectorField splits a comma separated selector field into candidates.
//
//	".a:0,.b:-1" => [{.a 0} {.b -1}]
func ParseSelectorField(s string) []Selector {
	var out []Selector
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := rePosition.FindStringSubmatch(part); m != nil {
			if n, err := strconv.Atoi(m[2]); err == nil {
				out = append(out, Selector{Query: m[1], Position: &n})
				continue
			}
		}
		out = append(out, Selector{Query: part})
	}
	return out
}

func applyJSONDirective(js *JSONConfig, key, value, extra string) bool {
	switch key {
	case "JSON_SRC":
		js.Src = value
	case "JSON_ROOT":
		js.Root = value
	case "JSON_URL_VAR":
		for i := range js.URLVars {
			if js.URLVars[i].Name == value {
				js.URLVars[i].Pattern = extra
				return true
			}
		}
		js.URLVars = append(js.URLVars, URLVar{Name: value, Pattern: extra})
	case "JSON_TITLE":
		js.Title = value
	case "JSON_AUTHOR":
		js.Author = value
	case "JSON_DESCRIPTION":
		js.Description = value
	case "JSON_HREF":
		js.Href = value
	case "JSON_HREF_TITLE":
		js.HrefTitle = value
	case "JSON_HREF_URL":
		js.HrefURL = value
	default:
		return false
	}
	return true
}

func (c *Config) set(key string, e Entry) {
	if _, exists := c.entries[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.entries[key] = e
}

func looksLikeSelector(v string) bool {
	return strings.ContainsAny(v, ".#[")
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}
