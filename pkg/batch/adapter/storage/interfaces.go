// Package storage defines the interfaces report artifacts are written through.
// A bucket is a directory for the local adapter and a GCS bucket for the gcs adapter.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/tripco2/pkg/batch/core/adapter"
)

// StorageProviderGroup is the Fx value group StorageProvider implementations are collected in.
const StorageProviderGroup = "storage_providers"

// StorageExecutor defines generic object operations.
type StorageExecutor interface {
	// Upload writes data to objectName in bucket, replacing any previous object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName in bucket. The caller must close the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object in bucket whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName from bucket. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named, typed storage backend.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	// DefaultBucket returns the bucket used when a call passes an empty bucket.
	DefaultBucket() string
}

// StorageProvider opens and caches connections of one storage type.
type StorageProvider interface {
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver picks the provider for a named "storage" entry and returns its connection.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
