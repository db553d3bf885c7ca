// Package sqlite implements the storage interface using SQLite.
//
// Layout:
//   - store.go: Store struct, New() constructor, pool and pragma setup
//   - schema.go: idempotent base schema
//   - migrations.go: name-keyed migration manager
//   - ids.go: hash-based root IDs and hierarchical child IDs
//   - items.go: work-item CRUD, tree queries
//   - search.go: filtered search with pagination and counts
//   - dependencies.go: typed edges with cycle-safe batch insertion
//   - blocked.go: blocked/actionable/unblocked computation
//   - notes.go: note upserts and queries
//   - transitions.go: append-only audit rows
//   - transaction.go: RunInTransaction and the transaction wrapper
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// setupWASMCache configures WASM compilation caching so the embedded SQLite
// build compiles once per machine instead of once per process start.
// Falls back to an in-memory cache when the cache dir is unavailable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "loom", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New creates a SQLite store at the given path, applying the base schema and
// any pending migrations. ":memory:" opens a shared in-memory database for
// tests.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" || (strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		// Shared cache so every pooled connection sees the same data.
		// WAL does not apply to in-memory databases.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errs.Database(err, "failed to create database directory")
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errs.Database(err, "failed to open database")
	}

	if isInMemory {
		// In-memory databases are isolated per connection without this.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports 1 writer + N readers; a bounded pool prevents
		// goroutine pile-up on write lock contention.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, errs.Database(err, "failed to enable WAL mode")
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.Database(err, "failed to ping database")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errs.Database(err, "failed to initialize schema")
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dbPath: path}, nil
}

// Close releases the connection pool. Safe to call twice.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.dbPath }

// UnderlyingDB exposes the raw pool for migration tooling.
func (s *Store) UnderlyingDB() *sql.DB { return s.db }

// dbtx is the common surface of *sql.DB, *sql.Conn and *sql.Tx, letting the
// query helpers serve both the pool-backed store and open transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueConstraintError checks for a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isBusyError checks for SQLITE_BUSY / locked conditions worth one retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "busy")
}

func dberr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if e := errs.As(err); e != nil {
		return err
	}
	return errs.Database(err, format, args...)
}
