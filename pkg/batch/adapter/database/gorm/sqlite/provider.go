// Package sqlite registers the SQLite dialector and provides its DBProvider.
package sqlite

import (
	"errors"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DBType is the configuration type handled by this package.
const DBType = "sqlite"

func init() {
	gormadapter.RegisterDialector(DBType, "sqlite3", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the DSN for SQLite: the file path, or ":memory:".
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database
}

// NewProvider creates the SQLite database.DBProvider.
func NewProvider(cfg *config.Config, log *logger.Logger) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType, log)
}
