// Package postgres registers the PostgreSQL dialector and provides its DBProvider.
package postgres

import (
	"fmt"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DBType is the configuration type handled by this package.
const DBType = "postgres"

func init() {
	gormadapter.RegisterDialector(DBType, "pgx", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString generates the key/value DSN expected by gorm.io/driver/postgres.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

// NewProvider creates the PostgreSQL database.DBProvider.
func NewProvider(cfg *config.Config, log *logger.Logger) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType, log)
}
