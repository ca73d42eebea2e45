package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/internal/metrics"
	"github.com/pds-match-service/pkg/demographics"
)

// ReconciliationEngine re-verifies a previously assigned identifier against the demographics
// currently held for the person.
type ReconciliationEngine struct {
	logger     *logrus.Logger
	registry   domain.RegistryClient
	repository domain.ReconciliationRepository
	comparer   *FieldComparer
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewReconciliationEngine creates a new reconciliation engine. repository may be nil, in which
// case records are not persisted.
func NewReconciliationEngine(
	logger *logrus.Logger,
	registry domain.RegistryClient,
	repository domain.ReconciliationRepository,
	m *metrics.Metrics,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		logger:     logger,
		registry:   registry,
		repository: repository,
		comparer:   NewFieldComparer(),
		metrics:    m,
		now:        time.Now,
	}
}

// Reconcile fetches the record for identifier and compares it with the submitted demographics.
// Registry outcomes such as a missing or superseded record are statuses, not errors; the error
// is only non-nil when ctx is already done on entry.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, identifier string, spec domain.PersonSpecification) (*domain.ReconciliationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identifier = strings.TrimSpace(identifier)
	record := &domain.ReconciliationRecord{
		ID:           DerivedID(demographics.NormalizeIdentifier(identifier), spec),
		Identifier:   identifier,
		Demographics: spec,
		CreatedAt:    e.now().UTC(),
	}

	e.reconcile(ctx, record)

	e.metrics.IncrementReconciliation(record.Status.String())
	e.logger.WithFields(logrus.Fields{
		"reconciliation_id": record.ID,
		"identifier":        record.Identifier,
		"status":            record.Status,
		"differences":       record.Differences,
	}).Info("Reconciliation completed")

	e.save(ctx, record)
	return record, nil
}

func (e *ReconciliationEngine) reconcile(ctx context.Context, record *domain.ReconciliationRecord) {
	if record.Identifier == "" {
		record.Status = domain.ReconcileMissingIdentifier
		return
	}
	if err := demographics.ValidateIdentifier(record.Identifier); err != nil {
		record.Status = domain.ReconcileInvalidIdentifier
		record.Message = err.Error()
		return
	}

	patient, err := e.registry.Fetch(ctx, demographics.NormalizeIdentifier(record.Identifier))
	if err != nil {
		e.applyFetchError(record, err)
		return
	}
	e.metrics.IncrementRegistryCall("fetch", "ok")

	comparison := e.comparer.Compare(ToQueryVariant(record.Demographics), patient)
	record.Differences = comparison.Differences
	record.Unused = comparison.Unused

	switch len(comparison.Differences) {
	case 0:
		record.Status = domain.ReconcileNoDifferences
	case 1:
		record.Status = domain.ReconcileOneDifference
	default:
		record.Status = domain.ReconcileManyDifferences
	}
}

func (e *ReconciliationEngine) applyFetchError(record *domain.ReconciliationRecord, err error) {
	var superseded *domain.SupersededError

	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		e.metrics.IncrementRegistryCall("fetch", "not_found")
		record.Status = domain.ReconcileRecordNotFound
	case errors.As(err, &superseded):
		e.metrics.IncrementRegistryCall("fetch", "superseded")
		record.Status = domain.ReconcileSupersededIdentifier
		record.ReplacementIdentifier = superseded.Replacement
	default:
		e.metrics.IncrementRegistryCall("fetch", "error")
		record.Status = domain.ReconcileError
		record.Message = err.Error()
	}
}

// A repository failure is logged and never changes the returned record.
func (e *ReconciliationEngine) save(ctx context.Context, record *domain.ReconciliationRecord) {
	if e.repository == nil {
		return
	}
	if err := e.repository.Save(ctx, record); err != nil {
		e.logger.WithError(err).WithField("reconciliation_id", record.ID).Error("Failed to persist reconciliation record")
	}
}

// DerivedID is the idempotency key of a reconciliation: the SHA-256 hex digest of the
// pipe-joined identifier and demographic fields in a fixed order.
func DerivedID(identifier string, spec domain.PersonSpecification) string {
	fields := []string{
		identifier,
		spec.GivenName,
		spec.FamilyName,
		spec.BirthDate,
		spec.GenderValue(),
		spec.PostalCode,
		spec.Email,
		spec.Phone,
	}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
