package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pds-match-service/internal/domain"
)

func reconciliationDemographics() domain.PersonSpecification {
	return domain.PersonSpecification{
		GivenName:  "Jane",
		FamilyName: "Smith",
		BirthDate:  "1980-01-01",
		Gender:     genderPtr(domain.GenderFemale),
		PostalCode: "LS1 6AE",
	}
}

func TestReconciliationEngine_Reconcile(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	tests := []struct {
		name        string
		identifier  string
		spec        func() domain.PersonSpecification
		fetchRecord *domain.PatientRecord
		fetchErr    error
		expectFetch bool
		status      domain.ReconciliationStatus
		replacement string
		differences []string
	}{
		{
			name:       "Missing identifier",
			identifier: "  ",
			spec:       reconciliationDemographics,
			status:     domain.ReconcileMissingIdentifier,
		},
		{
			name:       "Invalid identifier",
			identifier: "9000000000",
			spec:       reconciliationDemographics,
			status:     domain.ReconcileInvalidIdentifier,
		},
		{
			name:        "Record not found",
			identifier:  "9000000009",
			spec:        reconciliationDemographics,
			fetchErr:    fmt.Errorf("fetching: %w", domain.ErrRecordNotFound),
			expectFetch: true,
			status:      domain.ReconcileRecordNotFound,
		},
		{
			name:        "Superseded",
			identifier:  "9000000009",
			spec:        reconciliationDemographics,
			fetchErr:    &domain.SupersededError{Identifier: "9000000009", Replacement: "9000000017"},
			expectFetch: true,
			status:      domain.ReconcileSupersededIdentifier,
			replacement: "9000000017",
		},
		{
			name:        "Registry failure",
			identifier:  "9000000009",
			spec:        reconciliationDemographics,
			fetchErr:    &domain.RegistryError{Operation: "fetch", StatusCode: 500},
			expectFetch: true,
			status:      domain.ReconcileError,
		},
		{
			name:        "No differences",
			identifier:  "9000000009",
			spec:        reconciliationDemographics,
			fetchRecord: testPatientRecord(),
			expectFetch: true,
			status:      domain.ReconcileNoDifferences,
			differences: []string{},
		},
		{
			name:       "One difference",
			identifier: "9000000009",
			spec: func() domain.PersonSpecification {
				s := reconciliationDemographics()
				s.FamilyName = "Smyth"
				return s
			},
			fetchRecord: testPatientRecord(),
			expectFetch: true,
			status:      domain.ReconcileOneDifference,
			differences: []string{"family"},
		},
		{
			name:       "Many differences",
			identifier: "9000000009",
			spec: func() domain.PersonSpecification {
				s := reconciliationDemographics()
				s.FamilyName = "Smyth"
				s.BirthDate = "eq1990-01-01"
				return s
			},
			fetchRecord: testPatientRecord(),
			expectFetch: true,
			status:      domain.ReconcileManyDifferences,
			differences: []string{"family", "birthdate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := new(MockRegistryClient)
			if tt.expectFetch {
				registry.On("Fetch", ctx, tt.identifier).Return(tt.fetchRecord, tt.fetchErr).Once()
			}

			engine := NewReconciliationEngine(logger, registry, nil, nil)
			record, err := engine.Reconcile(ctx, tt.identifier, tt.spec())
			require.NoError(t, err)

			assert.Equal(t, tt.status, record.Status)
			assert.Equal(t, tt.replacement, record.ReplacementIdentifier)
			if tt.differences != nil {
				assert.Equal(t, tt.differences, record.Differences)
			}
			assert.Len(t, record.ID, 64)

			if tt.expectFetch {
				registry.AssertExpectations(t)
			} else {
				registry.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestReconciliationEngine_PersistsRecords(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	registry := new(MockRegistryClient)
	registry.On("Fetch", ctx, "9000000009").Return(testPatientRecord(), nil)

	t.Run("Saved_By_Derived_ID", func(t *testing.T) {
		repo := new(MockReconciliationRepository)
		expectedID := DerivedID("9000000009", reconciliationDemographics())
		repo.On("Save", ctx, mock.MatchedBy(func(r *domain.ReconciliationRecord) bool {
			return r.ID == expectedID && r.Status == domain.ReconcileNoDifferences
		})).Return(nil).Once()

		engine := NewReconciliationEngine(logger, registry, repo, nil)
		_, err := engine.Reconcile(ctx, "9000000009", reconciliationDemographics())
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("Spaced_Identifier_Shares_Key", func(t *testing.T) {
		repo := new(MockReconciliationRepository)
		expectedID := DerivedID("9000000009", reconciliationDemographics())
		repo.On("Save", ctx, mock.MatchedBy(func(r *domain.ReconciliationRecord) bool {
			return r.ID == expectedID
		})).Return(nil).Twice()

		engine := NewReconciliationEngine(logger, registry, repo, nil)
		spaced, err := engine.Reconcile(ctx, "900 000 0009", reconciliationDemographics())
		require.NoError(t, err)
		compact, err := engine.Reconcile(ctx, "9000000009", reconciliationDemographics())
		require.NoError(t, err)

		assert.Equal(t, compact.ID, spaced.ID)
		assert.Equal(t, domain.ReconcileNoDifferences, spaced.Status)
		repo.AssertExpectations(t)
	})

	t.Run("Save_Failure_Does_Not_Change_Outcome", func(t *testing.T) {
		repo := new(MockReconciliationRepository)
		repo.On("Save", ctx, mock.Anything).Return(errors.New("database unavailable"))

		engine := NewReconciliationEngine(logger, registry, repo, nil)
		record, err := engine.Reconcile(ctx, "9000000009", reconciliationDemographics())
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileNoDifferences, record.Status)
		assert.Empty(t, record.Message)
	})
}

func TestReconciliationEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewReconciliationEngine(newTestLogger(), new(MockRegistryClient), nil, nil)
	_, err := engine.Reconcile(ctx, "9000000009", reconciliationDemographics())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDerivedID(t *testing.T) {
	base := reconciliationDemographics()
	id := DerivedID("9000000009", base)

	assert.Equal(t, id, DerivedID("9000000009", reconciliationDemographics()), "identical inputs hash identically")

	variations := map[string]func(s *domain.PersonSpecification){
		"given":    func(s *domain.PersonSpecification) { s.GivenName = "Janet" },
		"family":   func(s *domain.PersonSpecification) { s.FamilyName = "Smyth" },
		"birth":    func(s *domain.PersonSpecification) { s.BirthDate = "1980-01-02" },
		"gender":   func(s *domain.PersonSpecification) { s.Gender = genderPtr(domain.GenderOther) },
		"postcode": func(s *domain.PersonSpecification) { s.PostalCode = "M1 1AE" },
		"email":    func(s *domain.PersonSpecification) { s.Email = "jane@example.com" },
		"phone":    func(s *domain.PersonSpecification) { s.Phone = "01632960001" },
	}

	for name, change := range variations {
		t.Run(name, func(t *testing.T) {
			spec := reconciliationDemographics()
			change(&spec)
			assert.NotEqual(t, id, DerivedID("9000000009", spec))
		})
	}

	assert.NotEqual(t, id, DerivedID("9000000017", base), "identifier participates in the hash")
}
