package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// ErrDirtySchema means a previous migration failed halfway. The reconciliation tables must be
// repaired by hand and the version forced before the service migrates again.
var ErrDirtySchema = errors.New("reconciliation schema is dirty")

// MigrationRunner applies the SQL files under migrations/ that create the reconciliation_records
// and algorithm_version tables.
type MigrationRunner struct {
	migrate *migrate.Migrate
	path    string
	target  string
	log     *logrus.Logger
}

// NewMigrationRunner opens the migration source and the target database.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	m.Log = migrationLogger{log: logger}

	return &MigrationRunner{
		migrate: m,
		path:    migrationsPath,
		target:  redactURL(databaseURL),
		log:     logger,
	}, nil
}

// Up brings the schema to the newest migration. Cancelling ctx stops after the migration in
// flight, leaving the schema at a clean version.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	if err := mr.checkClean(); err != nil {
		return err
	}

	entry := mr.log.WithFields(logrus.Fields{
		"migrations_path": mr.path,
		"database":        mr.target,
	})
	entry.Info("Migrating reconciliation schema")

	stop := mr.stopOnCancel(ctx)
	defer stop()

	if err := mr.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			entry.Info("Reconciliation schema is up to date")
			return nil
		}
		return fmt.Errorf("running migrations up: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrations interrupted: %w", err)
	}

	mr.logVersion("Reconciliation schema migrated")
	return nil
}

// Down rolls back the newest migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	mr.log.WithField("database", mr.target).Info("Rolling back newest schema migration")

	stop := mr.stopOnCancel(ctx)
	defer stop()

	if err := mr.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mr.log.Info("No schema migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	mr.logVersion("Schema migration rolled back")
	return nil
}

// Version returns the applied schema version and whether it is dirty.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

// Close closes the migration runner
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}

func (mr *MigrationRunner) checkClean() error {
	version, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}
	return nil
}

// stopOnCancel asks migrate to stop between migrations once ctx is done.
func (mr *MigrationRunner) stopOnCancel(ctx context.Context) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			select {
			case mr.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		// A stop that arrived after the last migration must not leak into the next run.
		select {
		case <-mr.migrate.GracefulStop:
		default:
		}
	}
}

func (mr *MigrationRunner) logVersion(message string) {
	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not read schema version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"schema_version": version,
		"dirty":          dirty,
	}).Info(message)
}

// migrationLogger forwards golang-migrate output to logrus at debug level.
type migrationLogger struct {
	log *logrus.Logger
}

func (l migrationLogger) Printf(format string, v ...interface{}) {
	l.log.WithField("component", "migrate").Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrationLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid database URL"
	}
	return u.Redacted()
}
