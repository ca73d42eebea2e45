package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
)

const defaultListLimit = 50

// ReconciliationRepository handles reconciliation record persistence
type ReconciliationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReconciliationRepository creates a new reconciliation repository
func NewReconciliationRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReconciliationRepository {
	return &ReconciliationRepository{
		db:  db,
		log: logger,
	}
}

// Save upserts a record by its derived id. Re-running the same reconciliation overwrites the
// previous outcome while keeping its creation time.
func (r *ReconciliationRepository) Save(ctx context.Context, record *domain.ReconciliationRecord) error {
	demographicsJSON, err := json.Marshal(record.Demographics)
	if err != nil {
		return fmt.Errorf("marshaling demographics: %w", err)
	}

	query := `
		INSERT INTO reconciliation_records (
			id, identifier, demographics, differences, unused, status,
			replacement_identifier, message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9
		)
		ON CONFLICT (id) DO UPDATE SET
			differences = EXCLUDED.differences,
			unused = EXCLUDED.unused,
			status = EXCLUDED.status,
			replacement_identifier = EXCLUDED.replacement_identifier,
			message = EXCLUDED.message,
			updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		record.ID,
		record.Identifier,
		demographicsJSON,
		nonNil(record.Differences),
		nonNil(record.Unused),
		string(record.Status),
		record.ReplacementIdentifier,
		record.Message,
		record.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"record_id":  record.ID,
			"identifier": record.Identifier,
			"error":      err,
		}).Error("Failed to save reconciliation record")
		return fmt.Errorf("saving reconciliation record: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"record_id": record.ID,
		"status":    record.Status,
	}).Debug("Reconciliation record saved")

	return nil
}

// GetByID retrieves a record by its derived id
func (r *ReconciliationRepository) GetByID(ctx context.Context, id string) (*domain.ReconciliationRecord, error) {
	query := `
		SELECT id, identifier, demographics, differences, unused, status,
			   COALESCE(replacement_identifier, ''), COALESCE(message, ''), created_at
		FROM reconciliation_records
		WHERE id = $1`

	record, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reconciliation record not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"record_id": id,
			"error":     err,
		}).Error("Failed to get reconciliation record")
		return nil, fmt.Errorf("getting reconciliation record: %w", err)
	}

	return record, nil
}

// ListByIdentifier returns the most recent records for an identifier, newest first
func (r *ReconciliationRepository) ListByIdentifier(ctx context.Context, identifier string, limit int) ([]*domain.ReconciliationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, identifier, demographics, differences, unused, status,
			   COALESCE(replacement_identifier, ''), COALESCE(message, ''), created_at
		FROM reconciliation_records
		WHERE identifier = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, identifier, limit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"error":      err,
		}).Error("Failed to list reconciliation records")
		return nil, fmt.Errorf("listing reconciliation records: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReconciliationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reconciliation row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reconciliation rows: %w", err)
	}

	return records, nil
}

// CountByStatus summarises stored outcomes
func (r *ReconciliationRepository) CountByStatus(ctx context.Context) (map[domain.ReconciliationStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM reconciliation_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting reconciliation records: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ReconciliationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[domain.ReconciliationStatus(status)] = count
	}

	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (*domain.ReconciliationRecord, error) {
	var record domain.ReconciliationRecord
	var demographicsJSON []byte
	var status string

	err := row.Scan(
		&record.ID,
		&record.Identifier,
		&demographicsJSON,
		&record.Differences,
		&record.Unused,
		&status,
		&record.ReplacementIdentifier,
		&record.Message,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(demographicsJSON, &record.Demographics); err != nil {
		return nil, fmt.Errorf("unmarshaling demographics: %w", err)
	}
	record.Status = domain.ReconciliationStatus(status)

	return &record, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
