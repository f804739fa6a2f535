package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"adimporter/workers/importer/internal/domain"
)

// MockHTTPClient is a mock implementation of domain.HTTPClient
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Download(ctx context.Context, url string) (*domain.Asset, error) {
	args := m.Called(ctx, url)

	var asset *domain.Asset
	if args.Get(0) != nil {
		asset = args.Get(0).(*domain.Asset)
	}

	return asset, args.Error(1)
}
