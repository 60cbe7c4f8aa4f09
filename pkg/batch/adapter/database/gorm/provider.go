package gorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"

	"gorm.io/gorm"
)

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

type dialectorEntry struct {
	factory    DialectorFactory
	driverName string
}

var (
	dialectorRegistry = make(map[string]dialectorEntry)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
// driverName is the database/sql driver the dialector opens (e.g., "sqlite3", "pgx").
func RegisterDialector(dbType, driverName string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = dialectorEntry{factory: factory, driverName: driverName}
}

func lookupDialector(dbType string) (dialectorEntry, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	entry, ok := dialectorRegistry[dbType]
	if !ok {
		return dialectorEntry{}, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return entry, nil
}

// DecodeDatabaseConfig decodes a raw "database.<name>" entry using its yaml tags.
func DecodeDatabaseConfig(raw interface{}) (dbconfig.DatabaseConfig, error) {
	var dbConfig dbconfig.DatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &dbConfig,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return dbConfig, err
	}
	if err := decoder.Decode(raw); err != nil {
		return dbConfig, err
	}
	return dbConfig, nil
}

// Open establishes a connection for dbConfig using the registered dialector of its type.
// SQLite connections are pinned to a single pooled connection so that an in-memory
// database survives across statements.
func Open(name string, dbConfig dbconfig.DatabaseConfig, sqlLogLevel string) (*GormDBAdapter, error) {
	entry, err := lookupDialector(dbConfig.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := entry.factory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(sqlLogLevel)})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	pool := dbConfig.Pool
	if dbConfig.Type == "sqlite" {
		pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeMinutes = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	if pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return NewGormDBAdapter(db, dbConfig, name, entry.driverName)
}

// BaseProvider provides connection caching for DBProvider implementations.
type BaseProvider struct {
	cfg         *config.Config
	dbType      string
	connections map[string]database.DBConnection
	log         *logger.Logger
	mu          sync.RWMutex
}

// NewBaseProvider creates a new BaseProvider. Connections it opens log to log, or to the
// default logger when log is nil.
func NewBaseProvider(cfg *config.Config, dbType string, log *logger.Logger) *BaseProvider {
	if log == nil {
		log = logger.Default()
	}
	return &BaseProvider{
		cfg:         cfg,
		dbType:      dbType,
		connections: make(map[string]database.DBConnection),
		log:         log,
	}
}

// Type returns the database type.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	rawConfig, ok := p.cfg.Tripco2.DatabaseConfigs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found", name)
	}
	dbConfig, err := DecodeDatabaseConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	if dbConfig.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, dbConfig.Type, name)
	}

	adapter, err := Open(name, dbConfig, p.cfg.Tripco2.System.Logging.SQLLevel)
	if err != nil {
		return nil, err
	}
	adapter.SetLogger(p.log)
	p.connections[name] = adapter
	p.log.Infof("Established new DB connection: %s (%s)", name, p.dbType)
	return adapter, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			p.log.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}
