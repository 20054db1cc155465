package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time interface check.
var _ Table = (*SQLiteTable)(nil)

// SQLiteTable is a persistent Table backed by SQLite. Each key is one row
// holding the value and a per-key version that is bumped on every write;
// conditional writes are a single UPDATE guarded on that version.
type SQLiteTable struct {
	db *sql.DB
}

// NewSQLiteTable opens (or creates) a SQLite database at the given path and
// initialises the schema. Use ":memory:" for an in-memory SQLite database.
func NewSQLiteTable(dsn string) (*SQLiteTable, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvcounter/store: open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kvcounter_entries (
			key     TEXT PRIMARY KEY,
			value   INTEGER NOT NULL,
			version INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvcounter/store: create table: %w", err)
	}

	return &SQLiteTable{db: db}, nil
}

// Get returns the entry for key.
func (s *SQLiteTable) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry

	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kvcounter_entries WHERE key = ?`, key,
	).Scan(&e.Value, &e.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, NewError(classifySQLite(err), "get", key, err)
	}
	return e, true, nil
}

// Insert writes value to key, checking expected unless it is Unconditional.
func (s *SQLiteTable) Insert(ctx context.Context, key string, value int64, expected Version) (Version, error) {
	var version Version

	if expected == Unconditional {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO kvcounter_entries (key, value, version) VALUES (?, ?, 1)
			ON CONFLICT(key) DO UPDATE SET
				value   = excluded.value,
				version = kvcounter_entries.version + 1
			RETURNING version`,
			key, value,
		).Scan(&version)
		if err != nil {
			return 0, NewError(classifySQLite(err), "insert", key, err)
		}
		return version, nil
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE kvcounter_entries SET value = ?, version = version + 1
		WHERE key = ? AND version = ?
		RETURNING version`,
		value, key, int64(expected),
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, NewError(classifySQLite(err), "insert", key, err)
	}

	// Nothing matched: either the key is missing or another writer moved
	// the version on.
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM kvcounter_entries WHERE key = ?`, key,
	).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, NewError(KindKeyDoesNotExist, "insert", key, nil)
	case err != nil:
		return 0, NewError(classifySQLite(err), "insert", key, err)
	}
	return 0, NewError(KindVersionMismatch, "insert", key, nil)
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteTable) Close() error {
	return s.db.Close()
}

func classifySQLite(err error) Kind {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_MISMATCH:
			return KindCorrupt
		}
	}
	return KindUnavailable
}
