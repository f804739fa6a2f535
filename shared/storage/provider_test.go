package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adimporter/shared/config"
	mockObservability "adimporter/shared/observability/mocks"
	"adimporter/shared/storage/adapters/fs"
)

func TestProvider_Singleton(t *testing.T) {
	instance = nil
	once = sync.Once{}

	provider1 := GetProvider()
	provider2 := GetProvider()

	assert.Same(t, provider1, provider2, "should return same instance")
}

func TestProvider_Initialize(t *testing.T) {
	tests := []struct {
		name          string
		storage       config.StorageConfig
		expectedError string
	}{
		{
			name: "filesystem provider",
			storage: config.StorageConfig{
				Provider:    "fs",
				PhotoBucket: "photos",
				VideoBucket: "videos",
			},
		},
		{
			name:          "storage not configured",
			storage:       config.StorageConfig{},
			expectedError: "storage is not configured",
		},
		{
			name:          "unsupported provider",
			storage:       config.StorageConfig{Provider: "gcs"},
			expectedError: "unsupported storage provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &Provider{}
			cfg := &config.Config{Storage: tt.storage}
			cfg.Storage.BasePath = t.TempDir()

			err := provider.Initialize(cfg, mockObservability.NewPermissiveLogger(), mockObservability.NewPermissiveMetrics())

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.False(t, provider.IsInitialized())
				return
			}

			require.NoError(t, err)
			assert.True(t, provider.IsInitialized())

			s := provider.MustGetStorage()
			assert.IsType(t, &fs.Storage{}, s)
			assert.DirExists(t, cfg.Storage.BasePath+"/photos")
			assert.DirExists(t, cfg.Storage.BasePath+"/videos")
		})
	}
}

func TestProvider_GetStorageBeforeInitialize(t *testing.T) {
	provider := &Provider{}

	_, err := provider.GetStorage()
	assert.Error(t, err)
	assert.Panics(t, func() { provider.MustGetStorage() })
}

func TestProvider_Reset(t *testing.T) {
	provider := &Provider{}
	cfg := &config.Config{Storage: config.StorageConfig{
		Provider:    "fs",
		BasePath:    t.TempDir(),
		PhotoBucket: "photos",
		VideoBucket: "videos",
	}}

	require.NoError(t, provider.Initialize(cfg, mockObservability.NewPermissiveLogger(), mockObservability.NewPermissiveMetrics()))
	provider.Reset()

	assert.False(t, provider.IsInitialized())
	_, err := provider.GetStorage()
	assert.Error(t, err)
}
