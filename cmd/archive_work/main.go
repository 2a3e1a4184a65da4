// Command archive-work fetches a work's top page, follows its table of
// contents, fetches every episode with a bounded worker pool and stores the
// results in the configured archive.
//
// Usage:
//
//	archive-work -url "https://ncode.syosetu.com/n1234ab/"
//	archive-work -config webnovel.yaml -url "https://kakuyomu.jp/works/1177354054881162325" -workers 4
//
// One JSON line per chapter is written to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"webnovel/internal/cliutil"
	"webnovel/internal/config"
)

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject an httptest client, a fake backend factory and
//     capture stdout/stderr.
//   - Alternate runtimes: swap the metrics backend or output sinks.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	HTTPClient     *http.Client
	BackendFactory cliutil.BackendFactory
	Getenv         func(string) string
	Now            func() time.Time
}

// runConfig holds the parsed flags.
type runConfig struct {
	ConfigPath  string
	URL         string
	Workers     int
	Limit       int
	DryRun      bool
	RulesDir    string
	StorageKind string
	StorageDSN  string
	LogLevel    string
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	os.Exit(run(context.Background(), os.Args[1:], deps{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		HTTPClient:     http.DefaultClient,
		BackendFactory: cliutil.DatadogFactory,
		Getenv:         os.Getenv,
		Now:            time.Now,
	}))
}

// run executes the archiver and returns an exit code.
//
// Exit codes:
//   - 0: every chapter was stored (or was already up to date).
//   - 1: the work page could not be processed, or at least one chapter failed.
//   - 2: usage/configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	rc, err := parseFlags(args, d.Stderr)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	cfg, err := cliutil.LoadConfig(rc.ConfigPath, d.Getenv)
	if err != nil {
		fmt.Fprintf(d.Stderr, "load config: %v\n", err)
		return 2
	}
	applyFlags(&cfg, rc)
	if err := cliutil.CheckConfig(cfg, d.Stderr); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	stopLog, err := cliutil.StartLogging(d.Stderr, cfg.Log)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	defer stopLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer cliutil.StartMetrics(ctx, cfg.Metrics, "archive_work", d.BackendFactory)()

	a, err := newArchiver(ctx, cfg, rc, d)
	if err != nil {
		fmt.Fprintf(d.Stderr, "%v\n", err)
		return 1
	}
	defer a.close()

	sum, err := a.archive(ctx, rc.URL)
	if err != nil {
		fmt.Fprintf(d.Stderr, "archive %s: %v\n", rc.URL, err)
		return 1
	}
	fmt.Fprintf(d.Stderr, "archived %q: %d chapters (%d saved, %d unchanged, %d failed)\n",
		sum.Title, sum.Total(), sum.Saved, sum.Unchanged, sum.Failed)
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (runConfig, error) {
	fs := flag.NewFlagSet("archive-work", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var rc runConfig
	fs.StringVar(&rc.ConfigPath, "config", "", "Optional: path to webnovel.yaml")
	fs.StringVar(&rc.URL, "url", "", "Work top page URL (required)")
	fs.IntVar(&rc.Workers, "workers", 0, "Concurrent episode fetches (default from config)")
	fs.IntVar(&rc.Limit, "limit", 0, "Archive at most N chapters (0 = all)")
	fs.BoolVar(&rc.DryRun, "dry-run", false, "Fetch and extract but do not write to storage")
	fs.StringVar(&rc.RulesDir, "rules-dir", "", "Override rules_dir from the config")
	fs.StringVar(&rc.StorageKind, "storage-kind", "", "Override storage.kind (sqlite, postgres, mssql)")
	fs.StringVar(&rc.StorageDSN, "storage-dsn", "", "Override storage.dsn")
	fs.StringVar(&rc.LogLevel, "log-level", "", "Override log.level")

	if err := fs.Parse(args); err != nil {
		return rc, err
	}
	rc.URL = strings.TrimSpace(rc.URL)
	if rc.URL == "" {
		return rc, fmt.Errorf("missing -url")
	}
	if rc.Workers < 0 {
		return rc, fmt.Errorf("-workers must be >= 0")
	}
	if rc.Limit < 0 {
		return rc, fmt.Errorf("-limit must be >= 0")
	}
	return rc, nil
}

func applyFlags(cfg *config.Config, rc runConfig) {
	if rc.Workers > 0 {
		cfg.Workers = rc.Workers
	}
	if rc.RulesDir != "" {
		cfg.RulesDir = rc.RulesDir
	}
	if rc.StorageKind != "" {
		cfg.Storage.Kind = rc.StorageKind
	}
	if rc.StorageDSN != "" {
		cfg.Storage.DSN = rc.StorageDSN
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
}
