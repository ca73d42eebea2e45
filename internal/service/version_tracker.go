package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/internal/metrics"
)

// maxSwapAttempts bounds the optimistic update loop when deploys race.
const maxSwapAttempts = 16

var canonicalGender = domain.GenderFemale

// CanonicalSpecification is the fixed input whose generated variants are hashed to detect a
// change in strategy behaviour. Every field is populated and the birth date is swappable, so
// every strategy contributes to the hash.
var CanonicalSpecification = domain.PersonSpecification{
	GivenName:  "Jane",
	FamilyName: "Smith",
	BirthDate:  "1980-01-02",
	Gender:     &canonicalGender,
	Phone:      "01632 960001",
	Email:      "jane.smith@example.com",
	PostalCode: "LS1 6AE",
}

// VariantGenerator produces query variants for a specification.
type VariantGenerator interface {
	Generate(spec domain.PersonSpecification) []domain.QueryVariant
}

// VersionTracker maintains the algorithm version, bumping it when the generator's output for
// the canonical specification changes and stepping back when a deploy rolls back.
type VersionTracker struct {
	logger    *logrus.Logger
	store     domain.VersionStore
	generator VariantGenerator
	metrics   *metrics.Metrics
	state     atomic.Pointer[domain.AlgorithmVersionState]
}

// NewVersionTracker creates a new version tracker
func NewVersionTracker(logger *logrus.Logger, store domain.VersionStore, generator VariantGenerator, m *metrics.Metrics) *VersionTracker {
	t := &VersionTracker{
		logger:    logger,
		store:     store,
		generator: generator,
		metrics:   m,
	}
	t.state.Store(&domain.AlgorithmVersionState{})
	return t
}

// ComputeHash returns the SHA-256 hex digest of the canonical JSON of the generated variants.
func (t *VersionTracker) ComputeHash() (string, error) {
	variants := t.generator.Generate(CanonicalSpecification)

	data, err := json.Marshal(variants)
	if err != nil {
		return "", fmt.Errorf("failed to serialise canonical variants: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// StoreOrIncrement reconciles the persisted state with the running generator. An unchanged
// hash keeps the version; the previous hash steps back one version; anything else steps forward.
func (t *VersionTracker) StoreOrIncrement(ctx context.Context) (domain.AlgorithmVersionState, error) {
	hash, err := t.ComputeHash()
	if err != nil {
		return domain.AlgorithmVersionState{}, err
	}

	for attempt := 1; attempt <= maxSwapAttempts; attempt++ {
		current, err := t.store.Load(ctx)
		if err != nil {
			return domain.AlgorithmVersionState{}, fmt.Errorf("failed to load algorithm version: %w", err)
		}

		next := NextVersionState(current, hash)
		if next == current {
			t.publish(current)
			t.logger.WithFields(logrus.Fields{
				"version": current.Version,
				"hash":    current.CurrentHash,
			}).Info("Algorithm version unchanged")
			return current, nil
		}

		swapped, err := t.store.CompareAndSwap(ctx, current, next)
		if err != nil {
			return domain.AlgorithmVersionState{}, fmt.Errorf("failed to store algorithm version: %w", err)
		}
		if !swapped {
			t.logger.WithField("attempt", attempt).Warn("Algorithm version changed concurrently, retrying")
			continue
		}

		t.publish(next)
		t.logger.WithFields(logrus.Fields{
			"previous_version": current.Version,
			"version":          next.Version,
			"hash":             next.CurrentHash,
			"rollback":         next.Version < current.Version,
		}).Info("Algorithm version updated")
		return next, nil
	}

	return domain.AlgorithmVersionState{}, domain.ErrVersionConflict
}

// NextVersionState computes the state that follows current when the generator hashes to hash.
func NextVersionState(current domain.AlgorithmVersionState, hash string) domain.AlgorithmVersionState {
	switch {
	case hash == current.CurrentHash:
		return current
	case current.PreviousHash != "" && hash == current.PreviousHash:
		return domain.AlgorithmVersionState{
			Version:     current.Version - 1,
			CurrentHash: hash,
		}
	default:
		return domain.AlgorithmVersionState{
			Version:      current.Version + 1,
			CurrentHash:  hash,
			PreviousHash: current.CurrentHash,
		}
	}
}

// Refresh reloads the persisted state without modifying it.
func (t *VersionTracker) Refresh(ctx context.Context) (domain.AlgorithmVersionState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return domain.AlgorithmVersionState{}, fmt.Errorf("failed to load algorithm version: %w", err)
	}
	t.publish(state)
	return state, nil
}

// GetCurrentVersion returns the last loaded version.
func (t *VersionTracker) GetCurrentVersion() int {
	return t.state.Load().Version
}

// GetState returns the last loaded state.
func (t *VersionTracker) GetState() domain.AlgorithmVersionState {
	return *t.state.Load()
}

// CheckDeclaredVersion rejects a caller-declared version that differs from the current one.
func (t *VersionTracker) CheckDeclaredVersion(declared *int) error {
	if declared == nil {
		return nil
	}
	if current := t.GetCurrentVersion(); *declared != current {
		return &domain.VersionMismatchError{Declared: *declared, Current: current}
	}
	return nil
}

func (t *VersionTracker) publish(state domain.AlgorithmVersionState) {
	s := state
	t.state.Store(&s)
	t.metrics.SetAlgorithmVersion(state.Version)
}
