// Package storage persists archived works and chapters.
//
// Backends live in subpackages and register themselves under a kind
// ("sqlite", "postgres", "mssql") from init; blank-import
// webnovel/internal/storage/all to get every one of them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a work or chapter does not exist.
var ErrNotFound = errors.New("storage: not found")

// Config selects a backend and its connection string.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the archive. Each backend implements the same semantics with
// its own upsert dialect (ON CONFLICT, MERGE).
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureSchema creates the works and chapters tables if they are missing.
	EnsureSchema(ctx context.Context) error

	// SaveWork inserts w or updates the row with the same URL. The returned
	// ID is the stored row's, which differs from w.ID when the work already
	// existed.
	SaveWork(ctx context.Context, w WorkRecord) (uuid.UUID, error)

	// FindWork looks a work up by URL.
	FindWork(ctx context.Context, url string) (WorkRecord, error)

	// SaveChapter inserts c or updates the row with the same (WorkID, URL).
	// A stored row whose BodyHash equals c.BodyHash is left alone and
	// SaveUnchanged is returned.
	SaveChapter(ctx context.Context, c ChapterRecord) (SaveResult, error)

	// ListChapters returns the chapters of a work ordered by Seq.
	ListChapters(ctx context.Context, workID uuid.UUID) ([]ChapterRecord, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty kind,
// a nil factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens the backend registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
