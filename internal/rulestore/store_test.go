package rulestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, dir, host, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, host), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, host, FileName), []byte(text), 0o600))
}

func TestLoad_CachesUntilCleared(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRules(t, dir, "ncode.syosetu.com", "TITLE\t.a:0\n")
	s := New(dir)
	ctx := context.Background()

	first, err := s.Load(ctx, "ncode.syosetu.com")
	require.NoError(t, err)
	require.NotNil(t, first.Rule("TITLE"))

	writeRules(t, dir, "ncode.syosetu.com", "TITLE\t.b:0\n")
	again, err := s.Load(ctx, "NCODE.syosetu.com")
	require.NoError(t, err)
	assert.Same(t, first, again, "second load must come from the cache")

	s.Clear()
	fresh, err := s.Load(ctx, "ncode.syosetu.com")
	require.NoError(t, err)
	assert.Equal(t, ".b", fresh.Rule("TITLE").Selectors[0].Query)

	writeRules(t, dir, "ncode.syosetu.com", "TITLE\t.c:0\n")
	s.Forget("ncode.syosetu.com")
	fresh, err = s.Load(ctx, "ncode.syosetu.com")
	require.NoError(t, err)
	assert.Equal(t, ".c", fresh.Rule("TITLE").Selectors[0].Query)
}

func TestLoad_MissingConfig(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	_, err := s.Load(context.Background(), "unknown.example")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfig), "%v", err)

	_, err = New(filepath.Join(t.TempDir(), "no-such-dir")).Load(context.Background(), "x.example")
	assert.True(t, errors.Is(err, ErrMissingConfig), "%v", err)
}

func TestLoad_RejectsPathTraversal(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	for _, h := range []string{"", "..", "../etc", `a\b`, "a/b", "a..b"} {
		_, err := s.Load(context.Background(), h)
		require.Error(t, err, h)
		assert.False(t, errors.Is(err, ErrMissingConfig), h)
	}
}

func TestLoadForURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRules(t, dir, "kakuyomu.jp", "JSON_SRC\tscript#__NEXT_DATA__\n")
	s := New(dir)

	cfg, err := s.LoadForURL(context.Background(), "https://kakuyomu.jp:443/works/1")
	require.NoError(t, err)
	assert.NotNil(t, cfg.JSON())

	_, err = s.LoadForURL(context.Background(), "/relative/only")
	assert.Error(t, err)
}

func TestLoad_ConcurrentFirstLoadsShareResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRules(t, dir, "a.example", "TITLE\t.t\n")
	s := New(dir)

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := s.Load(context.Background(), "a.example")
			if err == nil {
				results[i] = cfg
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NotNil(t, results[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRules(t, dir, "a.example", "TITLE\t.t\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(dir)
	if _, err := s.Load(ctx, "a.example"); err != nil {
		assert.True(t, errors.Is(err, context.Canceled))
	}
}

func TestHosts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRules(t, dir, "b.example", "TITLE\t.t\n")
	writeRules(t, dir, "a.example", "TITLE\t.t\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty.example"), 0o700))

	hosts, err := New(dir).Hosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, hosts)
}

func TestHostFromURL(t *testing.T) {
	t.Parallel()

	h, err := HostFromURL(" https://NCode.Syosetu.com/n1234ab/ ")
	require.NoError(t, err)
	assert.Equal(t, "ncode.syosetu.com", h)

	_, err = HostFromURL("::bad")
	assert.Error(t, err)
}
