// Package mysqldbtest points mysqldb.Connect at sqlmock.
package mysqldbtest

import (
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Octogonapus/ClusterBench/benchmark/mysqldb"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// Mock makes every mysqldb connection in the test talk to one sqlmock. Each Connect opens a new pool, so
// callers can close their handle without ending the mock. Statements are matched literally.
func Mock(t *testing.T) sqlmock.Sqlmock {
	dsn := "clusterbench_" + strings.ReplaceAll(t.Name(), "/", "_")
	raw, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	old := mysqldb.Connect
	mysqldb.Connect = func(string) (*sqlx.DB, error) {
		return sqlx.Open("sqlmock", dsn)
	}
	t.Cleanup(func() {
		mysqldb.Connect = old
		raw.Close()
	})
	return mock
}

// ExpectReset expects the statements mysqldb.ResetDatabase runs.
func ExpectReset(mock sqlmock.Sqlmock, database string) {
	mock.ExpectExec("DROP DATABASE IF EXISTS `" + database + "`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE DATABASE `" + database + "`").WillReturnResult(sqlmock.NewResult(0, 1))
}
