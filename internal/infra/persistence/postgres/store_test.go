package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"territorycore/internal/infra/persistence/memory"
	"territorycore/pkg/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockStore(t *testing.T, rows *sqlmock.Rows) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, defaultDriver, driver)
		assert.Equal(t, defaultDSN, dsn)
		return db, nil
	})
	t.Cleanup(restore)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS state`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT bucket, payload FROM state`).WillReturnRows(rows)

	store, err := NewStore("", domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store, mock
}

func TestNewStoreLoadsSnapshot(t *testing.T) {
	territories, err := json.Marshal(map[string]domain.Territory{
		"t1": {Base: domain.Base{ID: "t1"}, Number: 4},
	})
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"bucket", "payload"}).
		AddRow("territories", territories).
		AddRow("retired_bucket", []byte(`{"x":1}`))

	store, mock := setupMockStore(t, rows)

	rec, ok := store.Get(domain.EntityTerritory, "t1")
	require.True(t, ok)
	assert.Equal(t, int32(4), rec.(domain.Territory).Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionPersistsEveryBucket(t *testing.T) {
	store, mock := setupMockStore(t, sqlmock.NewRows([]string{"bucket", "payload"}))

	mock.ExpectBegin()
	for _, bucket := range memory.BucketNames {
		mock.ExpectExec(`INSERT INTO state`).
			WithArgs(bucket, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreatePhoneTerritory(domain.PhoneTerritory{Number: 1})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnUpsertFailure(t *testing.T) {
	store, mock := setupMockStore(t, sqlmock.NewRows([]string{"bucket", "payload"}))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO state`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateTerritory(domain.Territory{Number: 1})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert territories")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionSkipsPersistOnDomainError(t *testing.T) {
	store, mock := setupMockStore(t, sqlmock.NewRows([]string{"bucket", "payload"}))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteToken("missing")
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreSurfacesSchemaErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS state`).WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err = NewStore("postgres://example/db", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure state table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreSurfacesOpenErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("bad dsn") })
	defer restore()
	_, err := NewStore("x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres")
}
