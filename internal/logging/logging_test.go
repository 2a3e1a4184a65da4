package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]zapcore.Level{
		"":       zapcore.InfoLevel,
		"debug":  zapcore.DebugLevel,
		" WARN ": zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_WritesJSONLinesAndFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "webnovel.log")

	logger, closeFn, err := Setup(&buf, "info", file)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("rules loaded", zap.String("host", "kakuyomu.jp"))
	closeFn()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "rules loaded", rec["msg"])
	assert.Equal(t, "kakuyomu.jp", rec["host"])
	assert.Contains(t, rec, "caller")

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"rules loaded"`)
}

func TestSetup_BadLevel(t *testing.T) {
	t.Parallel()

	_, _, err := Setup(&bytes.Buffer{}, "chatty", "")
	assert.Error(t, err)
}
