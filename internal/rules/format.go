package rules

import (
	"strconv"
	"strings"
)

// Format serializes c back into rule-definition text. Parse(c.Format())
// yields a Config equal to c.
func (c *Config) Format() string {
	if c == nil {
		return ""
	}

	var b strings.Builder
	for _, key := range c.keys {
		e := c.entries[key]
		if !e.IsRule() {
			writeLine(&b, key, e.Scalar)
			continue
		}
		r := e.Rule
		parts := []string{key, FormatSelectorField(r.Selectors)}
		switch {
		case r.Replacement != "":
			parts = append(parts, r.Pattern, r.Replacement)
		case r.Pattern != "":
			parts = append(parts, r.Pattern)
		}
		writeLine(&b, parts...)
	}

	if js := c.json; js != nil {
		writeLine(&b, "JSON_SRC", js.Src)
		writeOptional(&b, "JSON_ROOT", js.Root)
		for _, v := range js.URLVars {
			writeLine(&b, "JSON_URL_VAR", v.Name, v.Pattern)
		}
		writeOptional(&b, "JSON_TITLE", js.Title)
		writeOptional(&b, "JSON_AUTHOR", js.Author)
		writeOptional(&b, "JSON_DESCRIPTION", js.Description)
		writeOptional(&b, "JSON_HREF", js.Href)
		writeOptional(&b, "JSON_HREF_TITLE", js.HrefTitle)
		writeOptional(&b, "JSON_HREF_URL", js.HrefURL)
	}
	return b.String()
}

// FormatSelectorField is the inverse of ParseSelectorField.
func FormatSelectorField(sels []Selector) string {
	parts := make([]string, 0, len(sels))
	for _, s := range sels {
		if s.Position != nil {
			parts = append(parts, s.Query+":"+strconv.Itoa(*s.Position))
			continue
		}
		parts = append(parts, s.Query)
	}
	return strings.Join(parts, ",")
}

func writeOptional(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	writeLine(b, key, value)
}

func writeLine(b *strings.Builder, fields ...string) {
	b.WriteString(strings.Join(fields, "\t"))
	b.WriteByte('\n')
}
