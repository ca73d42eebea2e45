// Package app wires the matching services from configuration. Both the HTTP server and the
// matchctl CLI build their dependency graph here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/database"
	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/internal/metrics"
	"github.com/pds-match-service/internal/repository"
	"github.com/pds-match-service/internal/service"
	"github.com/pds-match-service/internal/versionstore"
	"github.com/pds-match-service/pkg/external"
)

// App holds the wired services. Optional parts are nil when disabled by configuration.
type App struct {
	Config   *domain.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	RegistryClient domain.RegistryClient
	Breaker        *external.ResilientRegistryClient
	RecordCache    *external.RecordCache

	VersionStore versionstore.Store
	Tracker      *service.VersionTracker
	Strategies   *service.StrategyGenerator
	Orchestrator *service.SearchOrchestrator
	Reconciler   *service.ReconciliationEngine

	DB         *database.DB
	Repository *repository.ReconciliationRepository

	closers []func() error
}

// Option customises the wiring, mostly for tests.
type Option func(*options)

type options struct {
	registryClient domain.RegistryClient
	versionStore   versionstore.Store
}

// WithRegistryClient replaces the HTTP registry client. The breaker and cache still wrap it.
func WithRegistryClient(client domain.RegistryClient) Option {
	return func(o *options) {
		o.registryClient = client
	}
}

// WithVersionStore replaces the configured version store.
func WithVersionStore(store versionstore.Store) Option {
	return func(o *options) {
		o.versionStore = store
	}
}

// New builds the application. The algorithm version is loaded but not bumped; callers decide
// whether to run StoreOrIncrement.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if err := a.wireRegistry(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireVersions(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireRepository(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = service.NewSearchOrchestrator(logger, a.RegistryClient, a.Tracker, a.Metrics)

	var repo domain.ReconciliationRepository
	if a.Repository != nil {
		repo = a.Repository
	}
	a.Reconciler = service.NewReconciliationEngine(logger, a.reconcileClient(), repo, a.Metrics)

	return a, nil
}

func (a *App) wireRegistry(ctx context.Context, o *options) error {
	var client domain.RegistryClient
	if o.registryClient != nil {
		client = o.registryClient
	} else {
		client = external.NewRegistryHTTPClient(a.Config.Registry)
	}

	a.Breaker = external.NewResilientRegistryClient(client, a.Config.CircuitBreaker, a.Logger)
	a.RegistryClient = a.Breaker

	if !a.Config.Cache.Enabled {
		return nil
	}

	redisClient := a.redisClient(ctx)
	cache, err := external.NewRecordCache(a.Breaker, redisClient, a.Config.Cache, a.Logger)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return fmt.Errorf("failed to create record cache: %w", err)
	}
	a.RecordCache = cache
	a.RegistryClient = cache
	a.closers = append(a.closers, cache.Close)
	return nil
}

// reconcileClient never serves cached records, so merges and removals are seen immediately.
func (a *App) reconcileClient() domain.RegistryClient {
	if a.RecordCache != nil {
		return a.RecordCache.Fresh()
	}
	return a.Breaker
}

// redisClient returns nil when Redis is not configured or unreachable; the memory tier still works.
func (a *App) redisClient(ctx context.Context) *redis.Client {
	if a.Config.Cache.RedisURL == "" {
		return nil
	}

	client, err := external.NewRedisClient(ctx, a.Config.Cache)
	if err != nil {
		a.Logger.WithError(err).Warn("Redis unavailable, record cache is memory only")
		return nil
	}
	return client
}

func (a *App) wireVersions(ctx context.Context, o *options) error {
	store := o.versionStore
	if store == nil {
		var err error
		store, err = versionstore.New(ctx, a.Config.VersionStore)
		if err != nil {
			return fmt.Errorf("failed to open version store: %w", err)
		}
	}
	a.VersionStore = store
	a.closers = append(a.closers, store.Close)

	a.Strategies = service.NewStrategyGenerator()
	a.Tracker = service.NewVersionTracker(a.Logger, store, a.Strategies, a.Metrics)

	if _, err := a.Tracker.Refresh(ctx); err != nil {
		return err
	}
	return nil
}

func (a *App) wireRepository(ctx context.Context) error {
	if !a.Config.Database.Enabled {
		return nil
	}

	dbConfig := database.ConfigFrom(a.Config.Database)

	if a.Config.Database.MigrationsPath != "" {
		runner, err := database.NewMigrationRunner(dbConfig.URL(), a.Config.Database.MigrationsPath, a.Logger)
		if err != nil {
			return err
		}
		err = runner.Up(ctx)
		closeErr := runner.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			a.Logger.WithError(closeErr).Warn("Failed to close migration runner")
		}
	}

	db, err := database.NewConnection(ctx, dbConfig, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})

	a.Repository = repository.NewReconciliationRepository(db.Pool, a.Logger)
	return nil
}

// HealthChecks returns the dependency checks exposed on /health.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"version_store": func(ctx context.Context) error {
			_, err := a.VersionStore.Load(ctx)
			return err
		},
		"registry": a.Breaker.Health,
	}
	if a.DB != nil {
		checks["database"] = a.DB.Health
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
