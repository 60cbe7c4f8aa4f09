package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// migratorImpl implements Migrator on a shared connection pool.
// The pool stays open after migrating so later stages keep using it; this matters for
// in-memory SQLite where closing the pool drops the database.
type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a new Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// databaseDriver returns the golang-migrate driver and a release func that frees what
// the driver holds without closing sqlDB.
func (m *migratorImpl) databaseDriver(ctx context.Context, sqlDB *sql.DB, tableName string) (migratedb.Driver, func(), error) {
	switch m.dbType {
	case "postgres":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		drv, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: tableName})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return drv, func() { _ = conn.Close() }, nil
	case "sqlite":
		drv, err := sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
		if err != nil {
			return nil, nil, err
		}
		return drv, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	logger.Infof("Executing migration 'up' (Path: %s, Table: %s)", path, tableName)

	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	defer sourceDriver.Close()

	dbDriver, release, err := m.databaseDriver(ctx, sqlDB, tableName)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	defer release()

	// The migrate instance is not closed: Close would close sqlDB through the driver.
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := mInstance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verr := mInstance.Version(); verr == nil {
			logger.Errorf("Migration stopped at version %d (dirty=%t).", version, dirty)
		}
		return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", m.dbType, path, err)
	}

	logger.Infof("Migration 'up' completed successfully.")
	return nil
}
