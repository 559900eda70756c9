// Package storage provides the embedded, single-file relational store
// every other component sits on top of: one *sql.DB handle per database
// path, WAL journaling, ordered checksum-verified migrations, and a
// factory that enforces the process-wide singleton discipline.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// Options configure how the database is opened.
type Options struct {
	BusyTimeoutMs int
	CacheSizePages int // negative means KiB per SQLite convention
	MmapSizeBytes  int64
}

// DefaultOptions mirrors the PRAGMAs the source engine applies on open.
func DefaultOptions() Options {
	return Options{
		BusyTimeoutMs:  5000,
		CacheSizePages: -10000,
		MmapSizeBytes:  256 * 1024 * 1024,
	}
}

// Engine owns one *sql.DB handle bound to a single database path.
type Engine struct {
	db   *sql.DB
	path string
	mu   sync.Mutex // single-writer discipline; readers use db's own pool
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Engine{}
)

// Open returns the process-wide Engine for path, opening it on first use.
// Subsequent calls for the same absolute path return the same instance —
// this is the singleton discipline the Storage Engine contract requires.
func Open(path string, opts Options) (*Engine, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "resolve database path %q", path)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if e, ok := registry[abs]; ok {
		return e, nil
	}

	if dir := filepath.Dir(abs); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, graphmodel.NewStorageError(err, "create database directory %q", dir)
		}
	}

	db, err := sql.Open("sqlite", abs)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "open database %q", abs)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMs),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA cache_size = %d", opts.CacheSizePages),
		fmt.Sprintf("PRAGMA mmap_size = %d", opts.MmapSizeBytes),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			logging.Get(logging.CategoryStorage).Warn("pragma failed: %s: %v", p, err)
		}
	}

	e := &Engine{db: db, path: abs}
	if err := e.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	registry[abs] = e
	return e, nil
}

// DB exposes the underlying handle for read paths; writers must go
// through Transaction to respect the single-writer discipline.
func (e *Engine) DB() *sql.DB { return e.db }

// Transaction runs fn atomically while holding the engine's writer
// mutex. The mutex is not reentrant, so fn must not call Transaction
// again; no savepoint helper is provided.
func (e *Engine) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return graphmodel.NewStorageError(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return graphmodel.NewStorageError(err, "commit transaction")
	}
	return nil
}

// Close finalizes the handle and checkpoints the WAL.
func (e *Engine) Close() error {
	registryMu.Lock()
	delete(registry, e.path)
	registryMu.Unlock()

	if _, err := e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logging.Get(logging.CategoryStorage).Warn("wal checkpoint on close: %v", err)
	}
	return e.db.Close()
}

// Reset drops the process-wide singleton for path without touching the
// file on disk. Intended for test isolation between cases.
func Reset(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if e, ok := registry[abs]; ok {
		_ = e.db.Close()
		delete(registry, abs)
	}
}

// Path returns the absolute database path this engine is bound to.
func (e *Engine) Path() string { return e.path }
