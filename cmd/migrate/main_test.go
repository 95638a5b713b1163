package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAppliesPendingFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_tools.sql"), []byte("CREATE TABLE tools (id TEXT);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("CREATE TABLE subscribers (id TEXT);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT name FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_init.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE tools`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("002_tools.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, run(context.Background(), db, dir, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBackFailedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("CREATE TABL oops;"), 0o644))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT name FROM schema_migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABL oops`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = run(context.Background(), db, dir, false)
	assert.ErrorContains(t, err, "apply 001_bad.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
