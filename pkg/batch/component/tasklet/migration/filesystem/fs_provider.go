// Package filesystem embeds the run ledger migrations, one directory per database type.
package filesystem

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

//go:embed resource
var rawLedgerMigrationFS embed.FS

// ProvideLedgerMigrationsFS returns the contents of the 'resource' directory.
func ProvideLedgerMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawLedgerMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for ledger migration FS: %v", err)
	}
	return subFS
}
