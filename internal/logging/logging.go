// Package logging builds the zap loggers used by the commands.
//
// A logger is assembled from plugins (zapcore.Core values) that are teed
// together: stderr for humans, and optionally a size-rotated JSON file.
// Library packages never receive a logger; they log through zap.L(), which
// the commands point at the logger built here.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Plugin is one log sink.
type Plugin = zapcore.Core

// NewLogger wraps plugin with the default options plus any extra ones.
func NewLogger(plugin Plugin, options ...zap.Option) *zap.Logger {
	return zap.New(plugin, append(DefaultOption(), options...)...)
}

// NewPlugin writes to writer with the default encoder.
func NewPlugin(writer zapcore.WriteSyncer, enabler zapcore.LevelEnabler) Plugin {
	return zapcore.NewCore(DefaultEncoder(), writer, enabler)
}

// NewStderrPlugin writes to standard error.
func NewStderrPlugin(enabler zapcore.LevelEnabler) Plugin {
	return NewPlugin(zapcore.Lock(zapcore.AddSync(os.Stderr)), enabler)
}

// NewWriterPlugin writes to w. Tests use it to capture output.
func NewWriterPlugin(w io.Writer, enabler zapcore.LevelEnabler) Plugin {
	return NewPlugin(zapcore.Lock(zapcore.AddSync(w)), enabler)
}

// NewFilePlugin writes to a rotated file. lumberjack does not implement
// Sync, so the returned Closer must be closed before exit to flush it.
func NewFilePlugin(filePath string, enabler zapcore.LevelEnabler) (Plugin, io.Closer) {
	writer := DefaultLumberjackLogger()
	writer.Filename = filePath
	return NewPlugin(zapcore.AddSync(writer), enabler), writer
}

// DefaultEncoderConfig is the production config with capital levels and
// ISO8601 timestamps.
func DefaultEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// DefaultEncoder encodes JSON lines.
func DefaultEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(DefaultEncoderConfig())
}

// DefaultOption adds caller info, and stack traces from DPanic up.
func DefaultOption() []zap.Option {
	var stackTraceLevel zap.LevelEnablerFunc = func(level zapcore.Level) bool {
		return level >= zapcore.DPanicLevel
	}
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(stackTraceLevel),
	}
}

// DefaultLumberjackLogger rotates at 200MB, compresses old files and uses
// local time in backup names.
func DefaultLumberjackLogger() *lumberjack.Logger {
	return &lumberjack.Logger{
		MaxSize:   200,
		LocalTime: true,
		Compress:  true,
	}
}

// ParseLevel maps "debug", "info", "warn" or "error" (any case) to a zap
// level. An empty string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// Setup builds a logger writing to stderr and, when file is set, to a
// rotated file as well. The returned close function flushes both and must
// be called before exit.
func Setup(stderr io.Writer, level, file string) (*zap.Logger, func(), error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	plugins := []Plugin{NewWriterPlugin(stderr, lvl)}
	var closer io.Closer
	if file != "" {
		p, c := NewFilePlugin(file, lvl)
		plugins = append(plugins, p)
		closer = c
	}

	logger := NewLogger(zapcore.NewTee(plugins...))
	return logger, func() {
		_ = logger.Sync()
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}
