package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/tripco2/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// ConnectionResolver implements StorageConnectionResolver over every registered StorageProvider.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
}

// ResolverParams defines the dependencies for NewConnectionResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}

// NewConnectionResolver indexes the providers by type.
func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &ConnectionResolver{providers: providers, cfg: p.Cfg}
}

// ResolveStorageConnection returns the connection for the named "storage" entry.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	raw, ok := r.cfg.Tripco2.StorageConfigs[name]
	if !ok {
		return nil, fmt.Errorf("storage connection '%s' not found in configuration", name)
	}
	cfg, err := storageConfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	provider, ok := r.providers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", cfg.Type, name)
	}
	conn, err := provider.GetConnection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, cfg.Type, err)
	}
	return conn, nil
}

// CloseAll closes every provider's connections.
func (r *ConnectionResolver) CloseAll() error {
	var lastErr error
	for typ, provider := range r.providers {
		if err := provider.CloseAll(); err != nil {
			logger.Errorf("Failed to close storage provider '%s': %v", typ, err)
			lastErr = err
		}
	}
	return lastErr
}
