// Package config holds the YAML configuration shared by the commands.
//
// Precedence is defaults, then the YAML file, then environment variables,
// then command-line flags (applied by each command).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of webnovel.yaml.
type Config struct {
	RulesDir  string        `yaml:"rules_dir"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`

	Retry   RetryConfig   `yaml:"retry"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RetryConfig controls fetch retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// LogConfig selects the log level and an optional rotated log file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// StorageConfig selects the archive backend.
type StorageConfig struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

// MetricsConfig selects the metrics backend ("none" or "datadog").
type MetricsConfig struct {
	Backend    string        `yaml:"backend"`
	Job        string        `yaml:"job"`
	Tags       []string      `yaml:"tags"`
	FlushEvery time.Duration `yaml:"flush_every"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RulesDir:  "web",
		UserAgent: "webnovel-extract/1.0",
		Timeout:   30 * time.Second,
		Workers:   2,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: 2 * time.Second,
			MaxBackoff:  60 * time.Second,
		},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Kind: "sqlite", DSN: "webnovel.db"},
		Metrics: MetricsConfig{Backend: "none", Job: "webnovel", FlushEvery: 60 * time.Second},
	}
}

// Load reads path over the defaults. An empty path, or a path that does not
// exist, yields the defaults without error.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv:
// WEBNOVEL_RULES_DIR, WEBNOVEL_LOG_LEVEL, WEBNOVEL_LOG_FILE,
// WEBNOVEL_STORAGE_KIND, WEBNOVEL_STORAGE_DSN, METRICS_BACKEND and
// METRICS_TAGS (comma separated).
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.RulesDir, "WEBNOVEL_RULES_DIR")
	set(&c.Log.Level, "WEBNOVEL_LOG_LEVEL")
	set(&c.Log.File, "WEBNOVEL_LOG_FILE")
	set(&c.Storage.Kind, "WEBNOVEL_STORAGE_KIND")
	set(&c.Storage.DSN, "WEBNOVEL_STORAGE_DSN")
	set(&c.Metrics.Backend, "METRICS_BACKEND")

	if v := strings.TrimSpace(getenv("METRICS_TAGS")); v != "" {
		c.Metrics.Tags = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.Metrics.Tags = append(c.Metrics.Tags, t)
			}
		}
	}
}

// Severity classifies a validation Issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one configuration finding.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Validate reports problems with c. Storage kinds are checked by the storage
// registry when the backend is opened, not here.
func (c Config) Validate() []Issue {
	var out []Issue
	add := func(sev Severity, path, msg string) {
		out = append(out, Issue{Severity: sev, Path: path, Message: msg})
	}

	if strings.TrimSpace(c.RulesDir) == "" {
		add(SeverityError, "rules_dir", "must be set")
	} else if st, err := os.Stat(c.RulesDir); err != nil || !st.IsDir() {
		add(SeverityWarn, "rules_dir", fmt.Sprintf("%q is not a directory; every domain will report missing rules", c.RulesDir))
	}
	if c.Timeout <= 0 {
		add(SeverityError, "timeout", "must be > 0")
	}
	if c.Workers <= 0 {
		add(SeverityError, "workers", "must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		add(SeverityError, "retry.max_attempts", "must be > 0")
	}
	if c.Retry.BaseBackoff < 0 || c.Retry.MaxBackoff < 0 {
		add(SeverityError, "retry", "backoff must not be negative")
	} else if c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		add(SeverityWarn, "retry.max_backoff", "smaller than base_backoff; every wait is clamped to it")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		add(SeverityError, "log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	if strings.TrimSpace(c.Storage.Kind) == "" {
		add(SeverityError, "storage.kind", "must be set")
	}
	switch c.Metrics.Backend {
	case "", "none":
	case "datadog":
		if c.Metrics.FlushEvery < 0 {
			add(SeverityError, "metrics.flush_every", "must not be negative")
		}
	default:
		add(SeverityError, "metrics.backend", fmt.Sprintf("unknown backend %q (want none or datadog)", c.Metrics.Backend))
	}
	return out
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
