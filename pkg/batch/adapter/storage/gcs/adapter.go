// Package gcs stores report artifacts in Google Cloud Storage buckets.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/tripco2/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/tripco2/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "gcs"

// ClientFactory opens a GCS client for a connection. Tests replace it to point at an emulator.
type ClientFactory func(ctx context.Context, cfg storageConfig.StorageConfig) (*storage.Client, error)

// DefaultClientFactory uses the credentials file when set and application default credentials otherwise.
func DefaultClientFactory(ctx context.Context, cfg storageConfig.StorageConfig) (*storage.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return storage.NewClient(ctx, opts...)
}

type gcsAdapter struct {
	client *storage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter wraps an open client.
func NewGCSAdapter(client *storage.Client, cfg storageConfig.StorageConfig, name string) storageAdapter.StorageConnection {
	return &gcsAdapter{client: client, cfg: cfg, name: name}
}

func (a *gcsAdapter) Close() error {
	logger.Debugf("Closing GCS storage adapter '%s'.", a.name)
	return a.client.Close()
}

func (a *gcsAdapter) Type() string          { return ProviderType }
func (a *gcsAdapter) Name() string          { return a.name }
func (a *gcsAdapter) DefaultBucket() string { return a.cfg.BucketName }

func (a *gcsAdapter) bucket(name string) (*storage.BucketHandle, error) {
	if name == "" {
		name = a.cfg.BucketName
	}
	if name == "" {
		return nil, fmt.Errorf("gcs adapter '%s': no bucket given and bucket_name not configured", a.name)
	}
	return a.client.Bucket(name), nil
}

// Upload streams data to the object. The object becomes visible only when the writer closes.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	bh, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	w := bh.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload object '%s': %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s via adapter '%s'.", w.Bucket, objectName, a.name)
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	bh, err := a.bucket(bucket)
	if err != nil {
		return nil, err
	}
	r, err := bh.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object '%s': %w", objectName, err)
	}
	return r, nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	bh, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	it := bh.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	bh, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	if err := bh.Object(objectName).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			logger.Debugf("Attempted to delete non-existent object '%s' (gcs adapter '%s').", objectName, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete object '%s': %w", objectName, err)
	}
	return nil
}

// GCSProvider implements storage.StorageProvider for GCS connections.
type GCSProvider struct {
	cfg         *coreConfig.Config
	newClient   ClientFactory
	connections map[string]storageAdapter.StorageConnection
	mu          sync.Mutex
}

// NewGCSProvider creates a provider using DefaultClientFactory.
func NewGCSProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return NewGCSProviderWithFactory(cfg, DefaultClientFactory)
}

// NewGCSProviderWithFactory creates a provider that opens clients with factory.
func NewGCSProviderWithFactory(cfg *coreConfig.Config, factory ClientFactory) *GCSProvider {
	return &GCSProvider{
		cfg:         cfg,
		newClient:   factory,
		connections: make(map[string]storageAdapter.StorageConnection),
	}
}

func (p *GCSProvider) GetConnection(ctx context.Context, name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	raw, ok := p.cfg.Tripco2.StorageConfigs[name]
	if !ok {
		return nil, fmt.Errorf("storage configuration for name '%s' not found", name)
	}
	cfg, err := storageConfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("storage configuration '%s': %w", name, err)
	}
	if cfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, cfg.Type)
	}

	client, err := p.newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client for '%s': %w", name, err)
	}
	conn := NewGCSAdapter(client, cfg, name)
	p.connections[name] = conn
	logger.Infof("Established new GCS storage connection '%s'.", name)
	return conn, nil
}

func (p *GCSProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close GCS connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

func (p *GCSProvider) Type() string { return ProviderType }
