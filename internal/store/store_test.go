package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	insertTestDocument(t, s1, createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", map[string]any{"a": int64(1)}))
	s1.Close()

	s2, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM store").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("store rows = %d, want 1", count)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, DefaultOptions())
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"store", "flat"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", DefaultOptions())
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	opts := DefaultOptions()
	opts.Driver = "postgres"
	_, err := Open(path, opts)
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Errorf("Open() error = %v, want unknown driver", err)
	}
}

func TestOpen_ZeroOptionsUseDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:", DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	insertTestDocument(t, s, createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", map[string]any{"a": "x"}))

	// A second connection to :memory: would see an empty database.
	if got := s.db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
	if _, err := s.Get(context.Background(), "doc-1"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
}

func TestOpen_ModerncDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	opts := DefaultOptions()
	opts.Driver = DriverModernc
	s, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}

	insertTestDocument(t, s, createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", map[string]any{
		"n": int64(7),
		"f": 1.5,
	}))
	leaves, err := s.Leaves(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Leaves() failed: %v", err)
	}
	if len(leaves) != 4 {
		t.Errorf("len(leaves) = %d, want 4", len(leaves))
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Must not panic.
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

func TestDSN(t *testing.T) {
	opts := DefaultOptions()
	opts.BusyTimeout = 250 * time.Millisecond

	got := dsn("a.db", opts)
	for _, want := range []string{"_busy_timeout=250", "_foreign_keys=on", "_journal_mode=WAL", "_synchronous=NORMAL", "_txlock=immediate"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}

	opts.Driver = DriverModernc
	got = dsn("a.db", opts)
	for _, want := range []string{"_pragma=busy_timeout(250)", "_pragma=foreign_keys(1)", "_pragma=journal_mode(WAL)", "_txlock=immediate"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}
}

func TestDSN_URIWithQuery(t *testing.T) {
	opts := DefaultOptions()

	for _, driver := range []string{DriverSQLite3, DriverModernc} {
		opts.Driver = driver
		got := dsn("file::memory:?cache=shared", opts)
		if n := strings.Count(got, "?"); n != 1 {
			t.Errorf("dsn() = %q, has %d '?', want 1", got, n)
		}
		if !strings.HasPrefix(got, "file::memory:?cache=shared&") {
			t.Errorf("dsn() = %q, want the URI query kept and extended with &", got)
		}
	}

	if got := dsn("a.db", opts); !strings.HasPrefix(got, "a.db?") {
		t.Errorf("dsn() = %q, want a.db?...", got)
	}
}

func TestOpen_SharedMemoryURI(t *testing.T) {
	s, err := Open("file:dsn_uri_test?mode=memory&cache=shared", DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
	insertTestDocument(t, s, createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", map[string]any{"a": "x"}))
	if _, err := s.Get(context.Background(), "doc-1"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_EveryPooledConnection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Hold several connections at once so the pool has to open new ones.
	var conns []*sql.Conn
	for i := 0; i < 3; i++ {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn() failed: %v", err)
		}
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for i, c := range conns {
		var fk int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if fk != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, fk)
		}
	}
}

// Schema tests

func TestSchema_StoreTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "store")
	for _, col := range []string{"id", "updated", "dumps"} {
		if !contains(columns, col) {
			t.Errorf("store table missing column %q", col)
		}
	}
}

func TestSchema_FlatTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "flat")
	for _, col := range []string{"id", "updated", "position", "leaf"} {
		if !contains(columns, col) {
			t.Errorf("flat table missing column %q", col)
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		table string
		index string
	}{
		{"store", "idx_store_updated"},
		{"flat", "idx_flat_position_leaf"},
		{"flat", "idx_flat_id"},
	}
	for _, tt := range tests {
		indexes := getTableIndexes(t, s.db, tt.table)
		if !contains(indexes, tt.index) {
			t.Errorf("%s table missing index %q, got %v", tt.table, tt.index, indexes)
		}
	}
}

func TestSchema_LeafKeepsStorageClass(t *testing.T) {
	s := createTestStore(t)
	insertTestDocument(t, s, createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", map[string]any{
		"i": int64(3),
		"f": 2.5,
		"s": "3",
		"n": nil,
	}))

	want := map[string]string{
		"i": "integer",
		"f": "real",
		"s": "text",
		"n": "null",
	}
	for position, typ := range want {
		var got string
		err := s.db.QueryRow("SELECT typeof(leaf) FROM flat WHERE id = ? AND position = ?", "doc-1", position).Scan(&got)
		if err != nil {
			t.Fatalf("typeof(%s) failed: %v", position, err)
		}
		if got != typ {
			t.Errorf("typeof(%s) = %q, want %q", position, got, typ)
		}
	}
}

// Constraint tests

func TestConstraint_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	d := createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", nil)
	insertTestDocument(t, s, d)

	err := s.Tx(context.Background(), func(tx *Tx) error {
		return tx.InsertDocument(context.Background(), d)
	})
	if err == nil {
		t.Error("expected primary key violation, got nil")
	}
}

func TestConstraint_ForeignKeyFlatToStore(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO flat (id, updated, position, leaf)
		VALUES ('missing', '2024-01-01T00:00:00.000000000Z', 'a', 1)
	`)
	if err == nil {
		t.Error("expected foreign key violation, got nil")
	}
}

func TestConstraint_CascadeDelete(t *testing.T) {
	s := createTestStore(t)
	insertTestDocument(t, s, createTestDocument("doc-1", "2024-01-01T00:00:00.000000000Z", map[string]any{"a": "b"}))

	if _, err := s.db.Exec("DELETE FROM store WHERE id = 'doc-1'"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	n, err := s.LeafCount(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("LeafCount() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("LeafCount() = %d after cascade, want 0", n)
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}
}

func TestMigration_RejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	_, err = Open(path, DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("Open() error = %v, want newer schema error", err)
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
