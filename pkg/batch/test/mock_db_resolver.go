package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	storageAdapter "github.com/tigerroll/tripco2/pkg/batch/adapter/storage"
)

// MockDBConnectionResolver is a testify mock of dbadapter.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

// ResolveDBConnection mocks the ResolveDBConnection method.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	conn, _ := args.Get(0).(dbadapter.DBConnection)
	return conn, args.Error(1)
}

// testSingleConnectionResolver returns the same connection for every name.
type testSingleConnectionResolver struct {
	conn dbadapter.DBConnection
}

func (r *testSingleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	return r.conn, nil
}

// NewTestSingleConnectionResolver returns a resolver that always yields conn.
func NewTestSingleConnectionResolver(conn dbadapter.DBConnection) dbadapter.DBConnectionResolver {
	return &testSingleConnectionResolver{conn: conn}
}

var _ dbadapter.DBConnectionResolver = (*testSingleConnectionResolver)(nil)

// testSingleStorageResolver returns the same storage connection for every name.
type testSingleStorageResolver struct {
	conn storageAdapter.StorageConnection
}

func (r *testSingleStorageResolver) ResolveStorageConnection(ctx context.Context, name string) (storageAdapter.StorageConnection, error) {
	return r.conn, nil
}

// NewTestSingleStorageResolver returns a storage resolver that always yields conn.
func NewTestSingleStorageResolver(conn storageAdapter.StorageConnection) storageAdapter.StorageConnectionResolver {
	return &testSingleStorageResolver{conn: conn}
}
