package rules

import (
	"fmt"
	"regexp"

	"github.com/andybalholm/cascadia"
)

// Severity classifies a validation Issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one finding reported by Validate.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Validate lints a parsed config. Extraction never consults the result;
// broken candidates are skipped at evaluation time regardless. It exists for
// rule authors (see the -validate flag of extract_html).
func (c *Config) Validate() []Issue {
	if c == nil {
		return []Issue{{Severity: SeverityError, Path: "config", Message: "nil config"}}
	}

	var issues []Issue
	for _, key := range c.keys {
		e := c.entries[key]
		if !e.IsRule() {
			if key == Title || key == Author || key == Href || key == ContentArticle {
				issues = append(issues, Issue{
					Severity: SeverityWarn,
					Path:     key,
					Message:  fmt.Sprintf("value %q is stored as a scalar (no '.', '#' or '[')", e.Scalar),
				})
			}
			continue
		}
		for i, s := range e.Rule.Selectors {
			if _, err := cascadia.Compile(s.Query); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("%s[%d]", key, i),
					Message:  fmt.Sprintf("invalid selector %q: %v", s.Query, err),
				})
			}
		}
		if e.Rule.Pattern != "" {
			if _, err := regexp.Compile(e.Rule.Pattern); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     key + ".pattern",
					Message:  fmt.Sprintf("invalid regex %q: %v", e.Rule.Pattern, err),
				})
			}
		}
	}

	if c.droppedJSON {
		issues = append(issues, Issue{Severity: SeverityWarn, Path: "JSON", Message: "JSON_* directives ignored: JSON_SRC is missing"})
	}
	for _, key := range c.unknownJSON {
		issues = append(issues, Issue{Severity: SeverityWarn, Path: key, Message: "unknown JSON directive ignored"})
	}

	if js := c.json; js != nil {
		if _, err := cascadia.Compile(js.Src); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "JSON_SRC",
				Message:  fmt.Sprintf("invalid selector %q: %v", js.Src, err),
			})
		}
		for _, v := range js.URLVars {
			if v.Pattern == "" {
				issues = append(issues, Issue{Severity: SeverityWarn, Path: "JSON_URL_VAR." + v.Name, Message: "empty pattern"})
				continue
			}
			if _, err := regexp.Compile(v.Pattern); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     "JSON_URL_VAR." + v.Name,
					Message:  fmt.Sprintf("invalid regex %q: %v", v.Pattern, err),
				})
			}
		}
		if js.Title == "" && js.Author == "" {
			issues = append(issues, Issue{Severity: SeverityWarn, Path: "JSON", Message: "neither JSON_TITLE nor JSON_AUTHOR is set; work fields will always fall back to CSS rules"})
		}
	}
	return issues
}

// HasErrors reports whether issues contains at least one error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
