package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

//go:embed legacy_schema.sql
var legacySchemaSQL string

// Schema version tracking. The modern layout (surrogate ids + epoch
// timestamps) arrived in version 31; anything older is the legacy layout.
const (
	CurrentSchemaVersion = 47
	ModernSchemaVersion  = 31
	LegacySchemaVersion  = 30
)

// Era identifies which physical layout a store uses.
type Era int

const (
	EraLegacy Era = iota
	EraModern
)

func (e Era) String() string {
	if e == EraModern {
		return "modern"
	}
	return "legacy"
}

// Executor is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Managers and statement execution take an Executor so the same code runs
// inside and outside a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a handle on one recorder database. The schema version is read
// once at open and cached; the surrounding migration tooling guarantees it
// does not change under a live handle.
type Store struct {
	db      *sql.DB
	version int
}

// Open creates or opens a recorder database with the modern layout.
// Idempotent: safe to call on an existing database.
func Open(path string) (*Store, error) {
	return open(path, schemaSQL, CurrentSchemaVersion)
}

// OpenLegacy creates or opens a database with the legacy layout. It exists
// for the migration-boundary code path: history queries must keep answering
// while a database is still on the old layout.
func OpenLegacy(path string) (*Store, error) {
	return open(path, legacySchemaSQL, LegacySchemaVersion)
}

func open(path, schema string, version int) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	// SQLite allows one writer at a time; a second connection would only
	// produce SQLITE_BUSY under write load.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	current, err := ensureSchemaVersion(sqlDB, version)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("schema version: %w", err)
	}

	return &Store{db: sqlDB, version: current}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB. Prefer Store methods where they exist.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the migrated schema version read at open.
func (s *Store) SchemaVersion() int {
	return s.version
}

// Era reports which physical layout this store uses.
func (s *Store) Era() Era {
	if s.version >= ModernSchemaVersion {
		return EraModern
	}
	return EraLegacy
}

func applyPragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// ensureSchemaVersion reads the newest schema_changes row, inserting one for
// a freshly created database. The version is data, not connection state: the
// same file keeps its era across handles.
func ensureSchemaVersion(sqlDB *sql.DB, version int) (int, error) {
	var current sql.NullInt64
	err := sqlDB.QueryRow(
		"SELECT MAX(schema_version) FROM schema_changes",
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("read schema_changes: %w", err)
	}
	if current.Valid {
		return int(current.Int64), nil
	}

	now := float64(time.Now().UnixNano()) / float64(time.Second)
	_, err = sqlDB.Exec(
		"INSERT INTO schema_changes (schema_version, changed) VALUES (?, ?)",
		version, now,
	)
	if err != nil {
		return 0, fmt.Errorf("record schema version: %w", err)
	}
	return version, nil
}
