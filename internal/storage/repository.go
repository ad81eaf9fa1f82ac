// Package storage is the optional SQL sink for the finished panel.
//
// Backends register themselves by kind from an init function; callers pick
// one at run time with New. Importing evdemand/internal/storage/all links
// every backend and its driver.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and connects a backend.
type Config struct {
	Kind string
	DSN  string
}

// PanelRepository writes panel tables.
//
// Each backend implements idempotency in its own dialect (Postgres ON
// CONFLICT, SQLite OR IGNORE, SQL Server NOT EXISTS), keyed on
// TableSpec.Unique, so re-running a build never duplicates rows.
type PanelRepository interface {
	// EnsureTable creates the table and its unique key if missing.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// InsertRows inserts rows (in TableSpec column order) and returns the number
	// actually written. Rows whose unique key already exists are skipped.
	InsertRows(ctx context.Context, spec TableSpec, rows [][]any) (int64, error)

	// Close releases connections. Call once.
	Close()
}

// Factory builds a repository for a registered kind.
type Factory func(ctx context.Context, cfg Config) (PanelRepository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
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

// New constructs the repository registered under cfg.Kind.
//
// Errors:
//   - Empty or unregistered kind, or whatever the factory returns.
func New(ctx context.Context, cfg Config) (PanelRepository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
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
