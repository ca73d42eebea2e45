package versionstore

import (
	"context"
	"fmt"

	"github.com/pds-match-service/internal/domain"
)

// New opens the store selected by cfg.Backend.
func New(ctx context.Context, cfg domain.VersionStoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		store, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		store, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendPostgres:
		store, err := NewPostgresStoreFromURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := NewRedisStoreFromURL(ctx, cfg.URL, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStoreBackend, cfg.Backend)
	}
}
