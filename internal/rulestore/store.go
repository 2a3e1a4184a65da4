// Package rulestore loads and caches per-domain rule files.
//
// Rule files live at <dir>/<host>/extract.txt. Each host is parsed at most
// once per Store until Clear or Forget drops it; concurrent first loads of
// the same host share one read.
package rulestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"webnovel/internal/rules"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileName is the rule file name inside a host directory.
const FileName = "extract.txt"

// ErrMissingConfig means no rule file exists for the requested host.
var ErrMissingConfig = errors.New("no extraction rules for domain")

// Store is a concurrency-safe cache of parsed rule files.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*rules.Config

	group singleflight.Group
}

// New returns a Store reading rule files below dir.
func New(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string]*rules.Config)}
}

// Dir returns the rules root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the rule file path for host.
func (s *Store) Path(host string) string {
	return filepath.Join(s.dir, host, FileName)
}

// Load returns the parsed rules for host. A missing file yields an error
// wrapping ErrMissingConfig; other read failures are returned as is and are
// not cached.
func (s *Store) Load(ctx context.Context, host string) (*rules.Config, error) {
	host, err := normalizeHost(host)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cfg, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	ch := s.group.DoChan(host, func() (any, error) {
		return s.load(host)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rules.Config), nil
	}
}

func (s *Store) load(host string) (*rules.Config, error) {
	s.mu.RLock()
	cfg, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	p := s.Path(host)
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, host)
		}
		return nil, fmt.Errorf("read rules for %s: %w", host, err)
	}

	cfg = rules.Parse(string(b))
	for _, iss := range cfg.Validate() {
		zap.L().Debug("rule lint", zap.String("host", host), zap.String("issue", iss.String()))
	}

	s.mu.Lock()
	s.cache[host] = cfg
	s.mu.Unlock()

	zap.L().Info("rules loaded", zap.String("host", host), zap.String("path", p), zap.Int("keys", len(cfg.Keys())))
	return cfg, nil
}

// LoadForURL is Load for the host of rawURL.
func (s *Store) LoadForURL(ctx context.Context, rawURL string) (*rules.Config, error) {
	host, err := HostFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, host)
}

// Forget drops host from the cache.
func (s *Store) Forget(host string) {
	host, err := normalizeHost(host)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.cache, host)
	s.mu.Unlock()
}

// Clear drops every cached config.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cache = make(map[string]*rules.Config)
	s.mu.Unlock()
}

// Hosts lists the host directories that contain a rule file.
func (s *Store) Hosts() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.Path(e.Name())); err == nil {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// HostFromURL returns the lower-cased host name of rawURL without port.
func HostFromURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(host string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" || h == "." || h == ".." || strings.ContainsAny(h, `/\`) || strings.Contains(h, "..") {
		return "", fmt.Errorf("invalid host %q", host)
	}
	return h, nil
}
