package versionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pds-match-service/internal/domain"
)

const busyTimeoutMillis = 5000

// SQLiteStore keeps the state in a single-row SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite version store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection. The busy timeout comes first so
	// concurrent opens wait for the WAL switch instead of failing.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", dbPath, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS algorithm_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

// Load returns the stored state, or the zero state when no row exists.
func (s *SQLiteStore) Load(ctx context.Context) (domain.AlgorithmVersionState, error) {
	var state domain.AlgorithmVersionState

	err := s.db.QueryRowContext(ctx,
		"SELECT version, hash, previous_hash FROM algorithm_version WHERE id = ?", stateRowID,
	).Scan(&state.Version, &state.CurrentHash, &state.PreviousHash)

	if err == sql.ErrNoRows {
		return domain.AlgorithmVersionState{}, nil
	}
	if err != nil {
		return domain.AlgorithmVersionState{}, fmt.Errorf("failed to load version: %w", err)
	}
	return state, nil
}

// CompareAndSwap updates the row only when it still holds expected. The first write inserts.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, expected, next domain.AlgorithmVersionState) (bool, error) {
	var (
		result sql.Result
		err    error
	)

	if isZero(expected) {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO algorithm_version (id, version, hash, previous_hash)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, stateRowID, next.Version, next.CurrentHash, next.PreviousHash)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE algorithm_version SET
				version = ?,
				hash = ?,
				previous_hash = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND version = ? AND hash = ? AND previous_hash = ?
		`,
			next.Version, next.CurrentHash, next.PreviousHash,
			stateRowID, expected.Version, expected.CurrentHash, expected.PreviousHash,
		)
	}
	if isBusy(err) {
		// Another deploy holds the write lock; the caller reloads and retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to store version: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
