package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDBAdapter implements database.DBConnection on top of *gorm.DB.
type GormDBAdapter struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	cfg        dbconfig.DatabaseConfig
	name       string
	driverName string
	log        *logger.Logger
}

var _ database.DBConnection = (*GormDBAdapter)(nil)

// NewGormDBAdapter wraps an open *gorm.DB.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name, driverName string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &GormDBAdapter{
		db:         db,
		sqlDB:      sqlDB,
		cfg:        cfg,
		name:       name,
		driverName: driverName,
		log:        logger.Default(),
	}, nil
}

// SetLogger replaces the logger connection events are written to.
func (a *GormDBAdapter) SetLogger(log *logger.Logger) {
	a.log = log
}

// GormDB returns the underlying *gorm.DB.
func (a *GormDBAdapter) GormDB() *gorm.DB {
	return a.db
}

// Close closes the connection pool.
func (a *GormDBAdapter) Close() error {
	if a.sqlDB != nil {
		a.log.Infof("Closing database connection '%s'...", a.name)
		return a.sqlDB.Close()
	}
	return nil
}

// Type returns the configured database type.
func (a *GormDBAdapter) Type() string {
	return a.cfg.Type
}

// Name returns the connection name.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// DriverName returns the database/sql driver name.
func (a *GormDBAdapter) DriverName() string {
	return a.driverName
}

// Config returns the connection configuration.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// RefreshConnection pings the connection pool.
func (a *GormDBAdapter) RefreshConnection(ctx context.Context) error {
	if a.sqlDB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return a.sqlDB.PingContext(ctx)
}

// GetSQLDB returns the underlying *sql.DB.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

// Execute runs a statement that returns no rows.
func (a *GormDBAdapter) Execute(ctx context.Context, stmt database.Statement) (int64, error) {
	result := a.db.WithContext(ctx).Exec(stmt.SQL, stmt.Args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Fetch runs a query and scans the rows into dest.
func (a *GormDBAdapter) Fetch(ctx context.Context, dest interface{}, stmt database.Statement) error {
	return a.db.WithContext(ctx).Raw(stmt.SQL, stmt.Args...).Scan(dest).Error
}

// BulkInsert appends rows to table in batches. All batches run in one transaction,
// so a failure leaves the table as it was before the call.
func (a *GormDBAdapter) BulkInsert(ctx context.Context, table string, rows interface{}, batchSize int) (int64, error) {
	result := a.db.WithContext(ctx).Table(table).CreateInBatches(rows, batchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpsert inserts model, updating updateColumns when conflictColumns collide.
// With no updateColumns the conflicting row is left untouched.
func (a *GormDBAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	db := a.db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true})
	if tableName != "" {
		db = db.Table(tableName)
	}

	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
