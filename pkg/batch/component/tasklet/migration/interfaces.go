package migration

import (
	"context"
	"io/fs"
)

// LedgerMigrationsTable tracks the applied run ledger migrations.
const LedgerMigrationsTable = "tripco2_schema_migrations"

// Migrator handles database schema migrations.
type Migrator interface {
	// Up applies all pending migrations found under path in migrationFS.
	// tableName is the table golang-migrate records the applied version in.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
}
