package versionstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pds-match-service/internal/domain"
)

// PostgresStore keeps the state in the algorithm_version table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL version store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL version store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The state is one row read at deploy time; a small pool suffices.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Load returns the stored state, or the zero state when no row exists.
func (s *PostgresStore) Load(ctx context.Context) (domain.AlgorithmVersionState, error) {
	var state domain.AlgorithmVersionState

	err := s.db.QueryRowContext(ctx,
		"SELECT version, hash, previous_hash FROM algorithm_version WHERE id = $1", stateRowID,
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
func (s *PostgresStore) CompareAndSwap(ctx context.Context, expected, next domain.AlgorithmVersionState) (bool, error) {
	var (
		result sql.Result
		err    error
	)

	if isZero(expected) {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO algorithm_version (id, version, hash, previous_hash, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO NOTHING
		`, stateRowID, next.Version, next.CurrentHash, next.PreviousHash)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE algorithm_version SET
				version = $1,
				hash = $2,
				previous_hash = $3,
				updated_at = NOW()
			WHERE id = $4 AND version = $5 AND hash = $6 AND previous_hash = $7
		`,
			next.Version, next.CurrentHash, next.PreviousHash,
			stateRowID, expected.Version, expected.CurrentHash, expected.PreviousHash,
		)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
