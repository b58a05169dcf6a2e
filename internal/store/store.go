package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaSQL is the version 0 records table. Later columns and indexes come
// from migrations so old databases and new ones end up identical.
//
//go:embed schema.sql
var schemaSQL string

// migration moves the records schema from version-1 to version.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is applied in order; each step commits together with its
// user_version bump.
var migrations = []migration{
	{
		version: 1,
		name:    "index service_name",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_records_service ON records(service_name)`,
		},
	},
	{
		version: 2,
		name:    "function column for auto records",
		stmts: []string{
			`ALTER TABLE records ADD COLUMN function TEXT`,
			`UPDATE records SET function = json_extract(fields, '$.function') WHERE auto = 1`,
			`CREATE INDEX IF NOT EXISTS idx_records_function ON records(function) WHERE function IS NOT NULL`,
		},
	},
	{
		version: 3,
		name:    "index failed calls",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_records_failed ON records(seq) WHERE success = 0`,
		},
	},
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = migrations[len(migrations)-1].version

// Store is a record handler writing to SQLite in WAL mode. One connection
// serializes writers; handlers on several pool workers share it.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it to
// SchemaVersion. Opening an up-to-date database changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open record store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open record store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Records handed to Handle afterwards fail.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle for ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query runs an ad hoc query. Callers close the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// Version returns the database user_version.
func (s *Store) Version(ctx context.Context) (int, error) {
	return userVersion(ctx, s.db)
}

func prepare(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return migrate(context.Background(), db)
}

// migrate applies every migration newer than the stored user_version.
// A database from a newer build is refused rather than written to.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("records schema version %d is newer than %d", version, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	return tx.Commit()
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// verifyPragma is a test helper comparing a pragma to its expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
