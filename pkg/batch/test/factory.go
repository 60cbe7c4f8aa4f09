// Package test provides helpers shared by the package tests: real in-memory SQLite
// connections, sqlmock-backed Postgres connections and fixed resolvers.
package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	dbadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm/sqlite" // registers the sqlite dialector
)

// NewSQLiteConnection opens a private in-memory SQLite connection named name.
// The connection is closed when the test ends.
func NewSQLiteConnection(t *testing.T, name string) dbadapter.DBConnection {
	t.Helper()
	conn, err := gormadapter.Open(name, dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "SILENT")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewPostgresMockConnection returns a Postgres-typed connection whose statements are
// checked by the returned sqlmock. Expectations are verified when the test ends.
func NewPostgresMockConnection(t *testing.T, name string) (dbadapter.DBConnection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormadapter.NewGormLogger("SILENT"),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "postgres"}, name, "pgx")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return conn, mock
}
