package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pds-match-service/internal/database"
	"github.com/pds-match-service/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    5,
		MinConns:    1,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	migrationRunner, err := database.NewMigrationRunner(config.URL(), "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}

	if err := migrationRunner.Up(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testRecord(id, identifier string, status domain.ReconciliationStatus, createdAt time.Time) *domain.ReconciliationRecord {
	female := domain.GenderFemale
	return &domain.ReconciliationRecord{
		ID:         id,
		Identifier: identifier,
		Demographics: domain.PersonSpecification{
			GivenName:  "Jane",
			FamilyName: "Smith",
			BirthDate:  "1980-01-02",
			Gender:     &female,
			PostalCode: "LS1 6AE",
		},
		Differences: []string{"family"},
		Unused:      []string{"phone", "email"},
		Status:      status,
		CreatedAt:   createdAt.UTC().Truncate(time.Microsecond),
	}
}

func hexID(seed byte) string {
	id := make([]byte, 32)
	for i := range id {
		id[i] = seed
	}
	return hex.EncodeToString(id)
}

func TestReconciliationRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewReconciliationRepository(db.Pool, logger)
	ctx := context.Background()

	now := time.Now()

	t.Run("Save_And_Get", func(t *testing.T) {
		record := testRecord(hexID(1), "9000000009", domain.ReconcileOneDifference, now)
		require.NoError(t, repo.Save(ctx, record))

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.Identifier, got.Identifier)
		assert.Equal(t, record.Demographics, got.Demographics)
		assert.Equal(t, record.Differences, got.Differences)
		assert.Equal(t, record.Unused, got.Unused)
		assert.Equal(t, record.Status, got.Status)
		assert.Empty(t, got.ReplacementIdentifier)
		assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("Save_Is_Idempotent_By_ID", func(t *testing.T) {
		record := testRecord(hexID(2), "9000000017", domain.ReconcileRecordNotFound, now)
		require.NoError(t, repo.Save(ctx, record))

		record.Status = domain.ReconcileSupersededIdentifier
		record.ReplacementIdentifier = "9000000025"
		record.Differences = nil
		require.NoError(t, repo.Save(ctx, record))

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileSupersededIdentifier, got.Status)
		assert.Equal(t, "9000000025", got.ReplacementIdentifier)
		assert.Empty(t, got.Differences)

		records, err := repo.ListByIdentifier(ctx, "9000000017", 10)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("List_Newest_First", func(t *testing.T) {
		older := testRecord(hexID(3), "9000000033", domain.ReconcileNoDifferences, now.Add(-time.Hour))
		newer := testRecord(hexID(4), "9000000033", domain.ReconcileManyDifferences, now)
		require.NoError(t, repo.Save(ctx, older))
		require.NoError(t, repo.Save(ctx, newer))

		records, err := repo.ListByIdentifier(ctx, "9000000033", 0)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, newer.ID, records[0].ID)
		assert.Equal(t, older.ID, records[1].ID)

		limited, err := repo.ListByIdentifier(ctx, "9000000033", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("Count_By_Status", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[domain.ReconcileManyDifferences])
		assert.Equal(t, 1, counts[domain.ReconcileSupersededIdentifier])
	})

	t.Run("Not_Found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, hexID(9))
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
