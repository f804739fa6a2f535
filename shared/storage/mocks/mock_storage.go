// Package mocks provides a testify mock of the object storage contract.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"adimporter/shared/storage/types"
)

// MockObjectStorage is a mock implementation of types.ObjectStorage
type MockObjectStorage struct {
	mock.Mock
}

// Put mocks the Put method
func (m *MockObjectStorage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) error {
	args := m.Called(ctx, bucket, key, reader, metadata)
	return args.Error(0)
}

// Get mocks the Get method
func (m *MockObjectStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

// Delete mocks the Delete method
func (m *MockObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

// Exists mocks the Exists method
func (m *MockObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

// List mocks the List method
func (m *MockObjectStorage) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)
	if objects, ok := args.Get(0).([]types.ObjectInfo); ok {
		return objects, args.Error(1)
	}
	return nil, args.Error(1)
}

// EnsureBucket mocks the EnsureBucket method
func (m *MockObjectStorage) EnsureBucket(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}
