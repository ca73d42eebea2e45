// Package versionstore persists the algorithm version state shared by every process that
// serves matches. All backends implement compare-and-swap so concurrent deploys cannot lose
// an update.
package versionstore

import (
	"github.com/pds-match-service/internal/domain"
)

// Store is a domain.VersionStore that holds resources.
type Store interface {
	domain.VersionStore

	// Close releases the resources held by the store.
	Close() error
}

// Supported backend names for version_store.backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultRedisKey is used when version_store.redis_key is empty.
const DefaultRedisKey = "pds-match:algorithm-version"

// stateRowID is the single row holding the state in the SQL backends.
const stateRowID = 1

func isZero(state domain.AlgorithmVersionState) bool {
	return state == domain.AlgorithmVersionState{}
}
