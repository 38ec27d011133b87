package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - store + flat tables with indexes
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverModernc = "sqlite"  // modernc.org/sqlite (pure Go)
)

// ErrNotFound is returned when no document exists for an id.
var ErrNotFound = errors.New("flatdoc: document not found")

// Options configures how a database is opened.
type Options struct {
	// Driver is DriverSQLite3 or DriverModernc.
	// Default: DriverSQLite3
	Driver string

	// MaxOpenConns bounds the connections kept for one location.
	// In-memory databases always use a single connection.
	// Default: 4
	MaxOpenConns int

	// BusyTimeout is how long a connection waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration

	// Synchronous is the PRAGMA synchronous level.
	// Default: NORMAL
	Synchronous string
}

// DefaultOptions returns the options used by Open when none are given.
func DefaultOptions() Options {
	return Options{
		Driver:       DriverSQLite3,
		MaxOpenConns: 4,
		BusyTimeout:  5 * time.Second,
		Synchronous:  "NORMAL",
	}
}

// validate fills zero values with defaults.
func (o *Options) validate() error {
	def := DefaultOptions()
	if o.Driver == "" {
		o.Driver = def.Driver
	}
	if o.Driver != DriverSQLite3 && o.Driver != DriverModernc {
		return fmt.Errorf("unknown driver %q", o.Driver)
	}
	if o.MaxOpenConns < 1 {
		o.MaxOpenConns = def.MaxOpenConns
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = def.BusyTimeout
	}
	if o.Synchronous == "" {
		o.Synchronous = def.Synchronous
	}
	return nil
}

// Store holds a handle to one database location: the flat index table and
// the document table.
type Store struct {
	db       *sql.DB
	location string
	release  func() error // set when the handle belongs to a Pool
}

// Open creates or opens a database at path with its own connections.
// Applies the schema and migrations automatically.
//
// Every connection is configured through the DSN with:
//   - WAL mode for concurrent reads during writes
//   - the configured synchronous level
//   - busy_timeout for lock contention
//   - foreign key enforcement
//   - BEGIN IMMEDIATE transactions, so writers queue on busy_timeout
//     instead of failing on a read-to-write lock upgrade
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts Options) (*Store, error) {
	db, err := openDB(path, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, location: path}, nil
}

func openDB(path string, opts Options) (*sql.DB, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := sql.Open(opts.Driver, dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(path) {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// dsn renders path plus per-connection pragmas in the syntax of the driver.
// A file: URI that already has a query string keeps it.
func dsn(path string, opts Options) string {
	ms := opts.BusyTimeout.Milliseconds()
	var params []string
	switch opts.Driver {
	case DriverModernc:
		params = []string{
			fmt.Sprintf("_pragma=busy_timeout(%d)", ms),
			"_pragma=foreign_keys(1)",
			"_pragma=journal_mode(WAL)",
			fmt.Sprintf("_pragma=synchronous(%s)", opts.Synchronous),
			"_txlock=immediate",
		}
	default:
		params = []string{
			fmt.Sprintf("_busy_timeout=%d", ms),
			"_foreign_keys=on",
			"_journal_mode=WAL",
			"_synchronous=" + opts.Synchronous,
			"_txlock=immediate",
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// locationKey identifies a database location for pooling.
func locationKey(path string) (string, error) {
	if isMemory(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve location %q: %w", path, err)
	}
	return abs, nil
}

// Close releases the handle. A pooled handle returns its reference to the
// pool, which closes the connections when the last reference goes away.
func (s *Store) Close() error {
	if s.release != nil {
		return s.release()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Location returns the path this store was opened with (absolute when
// pooled).
func (s *Store) Location() string {
	return s.location
}

// Tx runs fn inside one transaction. Both tables of a document are always
// written through a single Tx so they commit or roll back together.
// The transaction is rolled back if fn returns an error.
func (s *Store) Tx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	// Version 1 is the initial schema; schema.sql already created it.
	// Future migrations go here as `if version < N { migrateToVN(db) }`.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if !strings.EqualFold(value, expected) {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
