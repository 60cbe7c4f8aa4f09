// Package database defines the query backend the pipeline stages talk to.
// Stages only see QueryBackend; the gorm sub-packages provide the implementation.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/tripco2/pkg/batch/core/adapter"
)

// Statement is a parameterized SQL statement. Placeholders are written as '?' and
// rebound by the backend for its dialect.
type Statement struct {
	SQL  string
	Args []interface{}
}

// NewStatement builds a Statement.
func NewStatement(sql string, args ...interface{}) Statement {
	return Statement{SQL: sql, Args: args}
}

// QueryBackend executes statements one at a time over a single exclusive connection.
type QueryBackend interface {
	// Type returns the SQL dialect of the backend ("sqlite", "postgres").
	Type() string
	// Execute runs a statement that returns no rows and reports the affected row count.
	Execute(ctx context.Context, stmt Statement) (int64, error)
	// Fetch runs a query and scans the result into dest (a pointer to a struct, slice or scalar).
	Fetch(ctx context.Context, dest interface{}, stmt Statement) error
	// BulkInsert appends rows (a slice of structs with column tags) to table in batches of batchSize.
	BulkInsert(ctx context.Context, table string, rows interface{}, batchSize int) (int64, error)
}

// DBConnection is a named database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Type(), Name(), Close()
	QueryBackend

	// ExecuteUpsert inserts model into table, updating updateColumns on a conflict over conflictColumns.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error)
	// RefreshConnection pings the connection pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
	// DriverName returns the database/sql driver name behind the connection.
	DriverName() string
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
}

// DBConnectionResolver resolves a named connection to the provider of its configured type.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group collecting DBProvider implementations.
const DBProviderGroup = "db_providers"
