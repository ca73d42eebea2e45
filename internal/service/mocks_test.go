package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pds-match-service/internal/domain"
)

// MockRegistryClient is a mock implementation of the domain.RegistryClient interface
type MockRegistryClient struct {
	mock.Mock
}

func (m *MockRegistryClient) Search(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	args := m.Called(ctx, variant)
	return args.Get(0).(domain.RegistrySearchResult), args.Error(1)
}

func (m *MockRegistryClient) Fetch(ctx context.Context, id string) (*domain.PatientRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PatientRecord), args.Error(1)
}

// MockReconciliationRepository is a mock implementation of the domain.ReconciliationRepository interface
type MockReconciliationRepository struct {
	mock.Mock
}

func (m *MockReconciliationRepository) Save(ctx context.Context, record *domain.ReconciliationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockReconciliationRepository) GetByID(ctx context.Context, id string) (*domain.ReconciliationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconciliationRecord), args.Error(1)
}

func (m *MockReconciliationRepository) ListByIdentifier(ctx context.Context, identifier string, limit int) ([]*domain.ReconciliationRecord, error) {
	args := m.Called(ctx, identifier, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReconciliationRecord), args.Error(1)
}

// staticVersion is a VersionChecker pinned to a single version
type staticVersion int

func (v staticVersion) CheckDeclaredVersion(declared *int) error {
	if declared != nil && *declared != int(v) {
		return &domain.VersionMismatchError{Declared: *declared, Current: int(v)}
	}
	return nil
}

func genderPtr(g domain.Gender) *domain.Gender {
	return &g
}

func intPtr(v int) *int {
	return &v
}
