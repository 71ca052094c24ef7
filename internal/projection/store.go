package projection

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - entity tables, projection_index, activity, projection_meta
const currentSchemaVersion = 1

// Meta keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaBuiltAt       = "built_at"
)

var (
	// ErrNotFound indicates no row for the requested id.
	ErrNotFound = errors.New("projection: not found")
	// ErrUnknownKind indicates a kind missing from the catalog.
	ErrUnknownKind = errors.New("projection: unknown kind")
	// ErrClosed indicates use of a store after Close or a failed swap.
	ErrClosed = errors.New("projection: store closed")
)

// reservedTables cannot be used as kind tables.
var reservedTables = map[string]bool{
	"projection_meta":  true,
	"projection_index": true,
	"activity":         true,
}

// Store is one SQLite projection database.
type Store struct {
	db      *sql.DB
	path    string
	catalog *catalog.Catalog
}

// Open creates or opens a projection database at path with a table for
// every kind in cat.
//
// The database is configured with:
//   - WAL mode so queries never block on a projector write
//   - NORMAL synchronous mode; the event log is the durable copy
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, cat *catalog.Catalog) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open projection database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to projection database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := newStore(db, path, cat)
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

func newStore(db *sql.DB, path string, cat *catalog.Catalog) *Store {
	return &Store{db: db, path: path, catalog: cat}
}

// Close closes the database. Closing the last connection checkpoints the
// WAL into the main file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Catalog returns the kinds this store has tables for.
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// Use runs fn against s. It lets a bare Store stand in wherever a Live
// holder is accepted, which is how rebuild points projectors at its temp
// store.
func (s *Store) Use(ctx context.Context, fn func(*Store) error) error {
	if s.db == nil {
		return ErrClosed
	}
	return fn(s)
}

// SetMeta upserts a projection_meta entry.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projection_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// Meta returns a projection_meta entry, or "" when unset.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM projection_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

// MarkBuilt records when a rebuild produced this store.
func (s *Store) MarkBuilt(ctx context.Context, at time.Time) error {
	return s.SetMeta(ctx, MetaBuiltAt, event.FormatTimestamp(at))
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates every missing table. Idempotent.
func (s *Store) applySchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	for _, kind := range s.catalog.Kinds() {
		if reservedTables[kind.Table] {
			return fmt.Errorf("kind %s uses reserved table name %q", kind.Name, kind.Table)
		}
		if _, err := s.db.Exec(kindTableDDL(kind.Table)); err != nil {
			return fmt.Errorf("create table for kind %s: %w", kind.Name, err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	_, err := s.db.Exec(
		`INSERT INTO projection_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		MetaSchemaVersion, fmt.Sprint(currentSchemaVersion))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// kindTableDDL returns the CREATE TABLE statement for one kind. table has
// already been validated by the catalog as a plain identifier.
func kindTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    status        TEXT NOT NULL,
    fields        TEXT NOT NULL DEFAULT '{}',
    supersedes    TEXT NOT NULL DEFAULT '',
    superseded_by TEXT NOT NULL DEFAULT '',
    removed       INTEGER NOT NULL DEFAULT 0,
    version       INTEGER NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);`, table, table, table)
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
