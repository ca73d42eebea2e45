package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/internal/metrics"
)

// VersionChecker validates a caller-declared algorithm version.
type VersionChecker interface {
	CheckDeclaredVersion(declared *int) error
}

// SearchOrchestrator runs a full match attempt: validation, strategy generation and the
// sequential registry search loop.
type SearchOrchestrator struct {
	logger    *logrus.Logger
	registry  domain.RegistryClient
	versions  VersionChecker
	assessor  *DataQualityAssessor
	generator *StrategyGenerator
	comparer  *FieldComparer
	metrics   *metrics.Metrics
}

// NewSearchOrchestrator creates a new search orchestrator
func NewSearchOrchestrator(
	logger *logrus.Logger,
	registry domain.RegistryClient,
	versions VersionChecker,
	m *metrics.Metrics,
) *SearchOrchestrator {
	return &SearchOrchestrator{
		logger:    logger,
		registry:  registry,
		versions:  versions,
		assessor:  NewDataQualityAssessor(),
		generator: NewStrategyGenerator(),
		comparer:  NewFieldComparer(),
		metrics:   m,
	}
}

// Search matches a person against the registry. A declared version that differs from the
// current one is returned as a *domain.VersionMismatchError; every other failure is reported
// through the decision status.
func (s *SearchOrchestrator) Search(ctx context.Context, spec domain.SearchSpecification) (*domain.MatchResponse, error) {
	startTime := time.Now()

	if err := s.versions.CheckDeclaredVersion(spec.StrategyVersion); err != nil {
		s.logger.WithError(err).Warn("Rejecting match request with mismatched algorithm version")
		return nil, err
	}

	report := s.assessor.Assess(spec.PersonSpecification)
	response := &domain.MatchResponse{DataQuality: report}

	if invalid := report.InvalidFields(); len(invalid) > 0 {
		response.Decision = validationFailure(fmt.Sprintf("invalid fields: %s", strings.Join(invalid, ", ")))
		s.record(response.Decision, startTime)
		return response, nil
	}
	if spec.IsBlank() {
		response.Decision = validationFailure(domain.ErrEmptySpecification.Error())
		s.record(response.Decision, startTime)
		return response, nil
	}

	variants := s.generator.Generate(spec.PersonSpecification)
	s.logger.WithField("variant_count", len(variants)).Debug("Generated query variants")

	decision, result := Decide(ctx, variants, s.executeSearch)
	response.Decision = decision

	if result != nil && result.Outcome == domain.OutcomeMatched && s.logger.IsLevelEnabled(logrus.InfoLevel) {
		if record := s.matchedRecord(ctx, *result); record != nil {
			s.logDifferences(variants[decision.VariantIndex], record, decision)
		}
	}

	s.record(decision, startTime)
	return response, nil
}

func (s *SearchOrchestrator) executeSearch(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	result, err := s.registry.Search(ctx, variant)
	if err != nil {
		s.metrics.IncrementRegistryCall("search", string(domain.OutcomeError))
		return domain.RegistrySearchResult{}, err
	}
	s.metrics.IncrementRegistryCall("search", string(result.Outcome))
	return result, nil
}

// matchedRecord returns the record carried by the search result, or fetches it when the
// registry answered with an identifier only. A failed fetch only skips the diagnostics.
func (s *SearchOrchestrator) matchedRecord(ctx context.Context, result domain.RegistrySearchResult) *domain.PatientRecord {
	if result.Record != nil {
		return result.Record
	}
	record, err := s.registry.Fetch(ctx, result.RecordID)
	if err != nil {
		s.logger.WithError(err).WithField("identifier", result.RecordID).Debug("Skipping difference diagnostics")
		return nil
	}
	return record
}

// Differences are logged for diagnostics only and never change the decision.
func (s *SearchOrchestrator) logDifferences(variant domain.QueryVariant, record *domain.PatientRecord, decision domain.MatchDecision) {
	comparison := s.comparer.Compare(variant, record)
	if len(comparison.Differences) == 0 {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"identifier":    decision.Identifier,
		"variant_index": decision.VariantIndex,
		"differences":   comparison.Differences,
		"unused":        comparison.Unused,
	}).Info("Matched record differs from submitted demographics")
}

func (s *SearchOrchestrator) record(decision domain.MatchDecision, startTime time.Time) {
	s.metrics.IncrementDecision(decision.Status.String(), decision.ProcessStage)
	s.metrics.ObserveSearchLatency(time.Since(startTime))

	entry := s.logger.WithFields(logrus.Fields(decision.LogFields()))
	if decision.Identifier != "" {
		entry = entry.WithField("identifier", decision.Identifier)
	}
	if decision.Status == domain.StatusError {
		entry.WithField("message", decision.Message).Warn("Match attempt failed")
		return
	}
	entry.Info("Match attempt completed")
}

func validationFailure(message string) domain.MatchDecision {
	return domain.MatchDecision{
		Status:       domain.StatusError,
		VariantIndex: -1,
		ProcessStage: domain.StageValidation,
		Message:      message,
	}
}
