package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver picks the DBProvider matching the configured type of a connection.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider
	cfg         *config.Config
}

// ResolverParams are the Fx dependencies of NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}

// NewGormDBConnectionResolver creates a new GormDBConnectionResolver.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider, len(p.DBProviders))
	for _, provider := range p.DBProviders {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{dbProviders: providerMap, cfg: p.Cfg}
}

// ResolveDBConnection returns the named connection, reconnecting through the provider
// if the cached pool no longer answers a ping.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	rawConfig, ok := r.cfg.Tripco2.DatabaseConfigs[name]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: database configuration '%s' not found", name)
	}
	dbConfig, err := DecodeDatabaseConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: failed to decode database config for '%s': %w", name, err)
	}

	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: DBProvider for type '%s' not found for connection '%s'", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: failed to get connection '%s': %w", name, err)
	}
	if pingErr := conn.RefreshConnection(ctx); pingErr != nil {
		logger.Warnf("DBConnectionResolver: connection '%s' did not answer a ping: %v", name, pingErr)
		return nil, fmt.Errorf("DBConnectionResolver: connection '%s' is not usable: %w", name, pingErr)
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var lastErr error
	for _, p := range r.dbProviders {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
