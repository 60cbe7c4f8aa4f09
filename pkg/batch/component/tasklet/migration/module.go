// Package migration applies the embedded run ledger schema with golang-migrate.
package migration

import (
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration/filesystem"
	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
)

// MigrationTaskletParams defines the dependencies for NewMigrationTaskletProvider.
type MigrationTaskletParams struct {
	fx.In
	DBResolver  database.DBConnectionResolver
	MigrationFS fs.FS `name:"ledgerMigrationsFS"`
	Pipeline    *config.PipelineConfig
}

// NewMigrationTaskletProvider builds the tasklet for the pipeline's query backend.
func NewMigrationTaskletProvider(p MigrationTaskletParams) *MigrationTasklet {
	return NewMigrationTasklet(p.DBResolver, p.MigrationFS, p.Pipeline.DBRef)
}

// Module provides the MigrationTasklet and the embedded migrations it applies.
var Module = fx.Options(
	filesystem.Module,
	fx.Provide(NewMigrationTaskletProvider),
)
