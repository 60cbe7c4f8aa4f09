package migration

import (
	"context"
	"io/fs"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// MigrationTasklet brings the schema of one connection up to date before the pipeline runs.
// Migrations are read from the directory named after the connection's database type.
type MigrationTasklet struct {
	dbResolver  database.DBConnectionResolver
	migrationFS fs.FS
	dbRef       string
	newMigrator func(database.DBConnection) Migrator
}

// NewMigrationTasklet creates a MigrationTasklet for the connection named dbRef.
func NewMigrationTasklet(dbResolver database.DBConnectionResolver, migrationFS fs.FS, dbRef string) *MigrationTasklet {
	return &MigrationTasklet{
		dbResolver:  dbResolver,
		migrationFS: migrationFS,
		dbRef:       dbRef,
		newMigrator: NewMigrator,
	}
}

// Execute applies pending migrations. Failures are fatal: the run ledger cannot be written without them.
func (t *MigrationTasklet) Execute(ctx context.Context) error {
	conn, err := t.dbResolver.ResolveDBConnection(ctx, t.dbRef)
	if err != nil {
		return exception.NewFatalf(taskletName, "failed to resolve DB connection '%s'", t.dbRef, err)
	}
	logger.Infof("Starting database migration for DB connection '%s' (%s).", t.dbRef, conn.Type())

	if err := t.newMigrator(conn).Up(ctx, t.migrationFS, conn.Type(), LedgerMigrationsTable); err != nil {
		return exception.NewFatal(taskletName, "migration 'up' failed", err)
	}
	return nil
}
