// Package catalog is the content-addressed SQLite store behind the file and
// torrent bookkeeping described in spec §4.6: one row per known file keyed by
// MD5, one row per tracked torrent, and an FTS5 index for search.
//
// Building any binary that imports this package requires the mattn/go-sqlite3
// "sqlite_fts5" build tag (go build -tags sqlite_fts5 ./...) so the driver
// compiles SQLite with FTS5 support.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQL driver.
	"github.com/pressly/goose"

	_ "github.com/shardkeeper/shardkeeper/internal/catalog/migrations" // Add migrations.
)

// searchBudget bounds how long a single Search call may run before it is
// cancelled out from under the caller (spec §4.6's 15s search budget).
const searchBudget = 15 * time.Second

// Config configures Open.
type Config struct {
	// Source is the sqlite3 DSN, typically a file path. Use ":memory:" for tests.
	Source string
}

// Store wraps the catalog database. A Store is safe for concurrent use; SQLite
// itself serializes writers, so Open pins the pool to a single connection the
// way uber-kraken's localdb does.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the sqlite3 database at cfg.Source, enables
// WAL mode, and applies all pending goose migrations.
func Open(cfg Config) (*Store, error) {
	db, err := sqlx.Open("sqlite3", cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %s", err)
	}
	// SQLite only tolerates one writer at a time; keeping a single connection
	// avoids SQLITE_BUSY races under our own control rather than relying on
	// busy_timeout alone.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %s", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %s", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %s", err)
	}

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %s", err)
	}
	if err := goose.Up(db.DB, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %s", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// searchContext derives a context bounded by searchBudget, layered under the
// caller's own context so either deadline can fire first.
func searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, searchBudget)
}
