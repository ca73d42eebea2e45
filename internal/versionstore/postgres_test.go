package versionstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pds-match-service/internal/domain"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return store, mock
}

func TestPostgresStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("Existing_Row", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)

		mock.ExpectQuery("SELECT version, hash, previous_hash FROM algorithm_version").
			WithArgs(stateRowID).
			WillReturnRows(sqlmock.NewRows([]string{"version", "hash", "previous_hash"}).AddRow(4, "ddd", "ccc"))

		state, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.AlgorithmVersionState{Version: 4, CurrentHash: "ddd", PreviousHash: "ccc"}, state)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No_Row", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)

		mock.ExpectQuery("SELECT version, hash, previous_hash FROM algorithm_version").
			WithArgs(stateRowID).
			WillReturnRows(sqlmock.NewRows([]string{"version", "hash", "previous_hash"}))

		state, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.AlgorithmVersionState{}, state)
	})

	t.Run("Query_Error", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)

		mock.ExpectQuery("SELECT version, hash, previous_hash FROM algorithm_version").
			WillReturnError(errors.New("connection lost"))

		_, err := store.Load(ctx)
		assert.ErrorContains(t, err, "connection lost")
	})
}

func TestPostgresStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("First_Write_Inserts", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		next := domain.AlgorithmVersionState{Version: 1, CurrentHash: "aaa"}

		mock.ExpectExec("INSERT INTO algorithm_version").
			WithArgs(stateRowID, 1, "aaa", "").
			WillReturnResult(sqlmock.NewResult(1, 1))

		ok, err := store.CompareAndSwap(ctx, domain.AlgorithmVersionState{}, next)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Lost_Insert_Race", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)

		mock.ExpectExec("INSERT INTO algorithm_version").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := store.CompareAndSwap(ctx, domain.AlgorithmVersionState{}, domain.AlgorithmVersionState{Version: 1, CurrentHash: "aaa"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Update_Matches_Expected", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		expected := domain.AlgorithmVersionState{Version: 1, CurrentHash: "aaa"}
		next := domain.AlgorithmVersionState{Version: 2, CurrentHash: "bbb", PreviousHash: "aaa"}

		mock.ExpectExec("UPDATE algorithm_version SET").
			WithArgs(2, "bbb", "aaa", stateRowID, 1, "aaa", "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := store.CompareAndSwap(ctx, expected, next)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update_Stale", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)

		mock.ExpectExec("UPDATE algorithm_version SET").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := store.CompareAndSwap(ctx,
			domain.AlgorithmVersionState{Version: 1, CurrentHash: "aaa"},
			domain.AlgorithmVersionState{Version: 2, CurrentHash: "bbb", PreviousHash: "aaa"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}
