package filesystem

import (
	"go.uber.org/fx"
)

// LedgerMigrationsFSTag is the Fx tag for the embedded ledger migrations filesystem.
const LedgerMigrationsFSTag = `name:"ledgerMigrationsFS"`

// Module provides the embedded ledger migrations.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		ProvideLedgerMigrationsFS,
		fx.ResultTags(LedgerMigrationsFSTag),
	)),
)
