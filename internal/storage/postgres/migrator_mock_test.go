package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectMigrationTx(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(migrationLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
}

func TestMigrateUp_OneStep(t *testing.T) {
	store, mock := newMockStore(t)

	expectMigrationTx(mock)
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(mock.NewRows([]string{"version"}))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sellers").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(int64(1), "marketplace").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.MigrateUp(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_NothingToApply(t *testing.T) {
	store, mock := newMockStore(t)

	expectMigrationTx(mock)
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(mock.NewRows([]string{"version"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectCommit()

	require.NoError(t, store.MigrateUp(context.Background(), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateDown_LastVersion(t *testing.T) {
	store, mock := newMockStore(t)

	expectMigrationTx(mock)
	mock.ExpectQuery("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").
		WillReturnRows(mock.NewRows([]string{"version"}).AddRow(int64(2)))
	mock.ExpectExec("DROP TABLE IF EXISTS outbox").
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`DELETE FROM schema_migrations WHERE version = \$1`).
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.MigrateDown(context.Background(), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationStatus(t *testing.T) {
	store, mock := newMockStore(t)

	expectMigrationTx(mock)
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(mock.NewRows([]string{"version", "count"}).AddRow(int64(2), 2))
	mock.ExpectCommit()

	version, count, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
