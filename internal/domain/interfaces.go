package domain

import (
	"context"
)

// RegistryClient executes queries against the national person registry.
//
// Search returns an error for transport or service failures; Matched, Unmatched and
// MultiMatched are all successful answers. Fetch returns ErrRecordNotFound when the
// identifier is unknown and a *SupersededError when the record was merged into another.
type RegistryClient interface {
	Search(ctx context.Context, variant QueryVariant) (RegistrySearchResult, error)
	Fetch(ctx context.Context, identifier string) (*PatientRecord, error)
}

// VersionStore persists the algorithm version state.
//
// Load returns the zero state when nothing has been persisted. CompareAndSwap writes next only
// if the persisted state still equals expected, and reports whether the write happened.
type VersionStore interface {
	Load(ctx context.Context) (AlgorithmVersionState, error)
	CompareAndSwap(ctx context.Context, expected, next AlgorithmVersionState) (bool, error)
}

// ReconciliationRepository stores reconciliation records keyed by their derived id.
type ReconciliationRepository interface {
	Save(ctx context.Context, record *ReconciliationRecord) error
	GetByID(ctx context.Context, id string) (*ReconciliationRecord, error)
	ListByIdentifier(ctx context.Context, identifier string, limit int) ([]*ReconciliationRecord, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetRegistryConfig() *RegistryConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
