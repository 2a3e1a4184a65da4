// Package cliutil wires the ambient stack (config, logging, metrics) for the
// commands under cmd/.
package cliutil

import (
	"context"
	"fmt"
	"io"
	"time"

	"webnovel/internal/config"
	"webnovel/internal/logging"
	"webnovel/internal/metrics"
	"webnovel/internal/metrics/datadog"

	"go.uber.org/zap"
)

// BackendCloser is a metrics backend that owns a flush loop.
type BackendCloser interface {
	metrics.Backend
	Close() error
}

// BackendFactory builds the metrics backend selected by metrics.backend.
type BackendFactory func(ctx context.Context, job string, tags []string, flushEvery time.Duration) (BackendCloser, error)

// DatadogFactory is the production BackendFactory.
func DatadogFactory(ctx context.Context, job string, tags []string, flushEvery time.Duration) (BackendCloser, error) {
	return datadog.NewBackend(ctx, datadog.Options{JobName: job, Tags: tags, FlushEvery: flushEvery})
}

// LoadConfig reads path and applies environment overrides through getenv.
func LoadConfig(path string, getenv func(string) string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if getenv != nil {
		cfg.ApplyEnv(getenv)
	}
	return cfg, nil
}

// CheckConfig prints every issue to stderr and reports whether any of them
// is an error.
func CheckConfig(cfg config.Config, stderr io.Writer) error {
	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("invalid configuration")
	}
	return nil
}

// StartLogging installs a zap logger built from cfg as the global logger.
// The returned function restores the previous logger and flushes outputs.
func StartLogging(stderr io.Writer, cfg config.LogConfig) (func(), error) {
	logger, closeLog, err := logging.Setup(stderr, cfg.Level, cfg.File)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	restore := zap.ReplaceGlobals(logger)
	return func() {
		restore()
		closeLog()
	}, nil
}

// StartMetrics installs the backend selected by cfg. With backend "none"
// (or empty) the no-op backend stays in place. A backend that fails to
// initialize is logged and skipped; metrics never fail a run.
//
// The returned function flushes and closes the backend and restores the
// no-op backend.
func StartMetrics(ctx context.Context, cfg config.MetricsConfig, tool string, factory BackendFactory) func() {
	switch cfg.Backend {
	case "", "none":
		zap.L().Debug("metrics disabled")
		return func() {}
	}
	if factory == nil {
		factory = DatadogFactory
	}

	tags := append(append([]string(nil), cfg.Tags...), "tool:"+tool)
	b, err := factory(ctx, cfg.Job, tags, cfg.FlushEvery)
	if err != nil {
		zap.L().Warn("metrics backend init failed; using nop", zap.String("backend", cfg.Backend), zap.Error(err))
		return func() {}
	}
	zap.L().Info("metrics enabled", zap.String("backend", cfg.Backend), zap.String("job", cfg.Job), zap.Strings("tags", tags))
	metrics.SetBackend(b)

	return func() {
		if err := b.Close(); err != nil {
			zap.L().Warn("metrics close/flush", zap.Error(err))
		}
		metrics.SetBackend(nil)
	}
}
