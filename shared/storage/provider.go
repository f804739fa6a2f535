// Package storage selects and bootstraps the object storage backend holding
// creative media: S3 in deployments, the local filesystem in development
// and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"adimporter/shared/config"
	"adimporter/shared/observability"
	"adimporter/shared/storage/adapters/fs"
	"adimporter/shared/storage/adapters/s3"
	"adimporter/shared/storage/types"
)

// bootstrapTimeout bounds bucket verification at startup.
const bootstrapTimeout = 10 * time.Second

// ErrNotInitialized is returned by GetStorage before Initialize.
var ErrNotInitialized = errors.New("storage not initialized; call Initialize() first")

type factory func(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (types.ObjectStorage, error)

var backends = map[string]factory{
	"s3": func(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (types.ObjectStorage, error) {
		return s3.NewClient(cfg, logger, metrics)
	},
	"fs": func(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (types.ObjectStorage, error) {
		return fs.NewStorage(cfg.BasePath, logger, metrics)
	},
}

// Provider owns the process-wide storage backend.
type Provider struct {
	mu      sync.RWMutex
	storage types.ObjectStorage
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the process-wide provider.
func GetProvider() *Provider {
	once.Do(func() {
		instance = &Provider{}
	})
	return instance
}

// Initialize builds the configured backend and makes sure the photo and
// video buckets exist. It is a no-op once it has succeeded.
func (p *Provider) Initialize(cfg *config.Config, logger observability.Logger, metrics observability.Metrics) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.storage != nil {
		return nil
	}

	name := cfg.Storage.Provider
	if name == "" {
		return errors.New("failed to create storage: storage is not configured")
	}
	create, ok := backends[name]
	if !ok {
		return fmt.Errorf("failed to create storage: unsupported storage provider: %s", name)
	}

	storage, err := create(&cfg.Storage, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()
	for _, bucket := range []string{cfg.Storage.PhotoBucket, cfg.Storage.VideoBucket} {
		if err := storage.EnsureBucket(ctx, bucket); err != nil {
			return fmt.Errorf("failed to prepare bucket %q: %w", bucket, err)
		}
	}

	logger.Info(ctx, "Storage initialized", observability.Fields{
		"provider":     name,
		"photo_bucket": cfg.Storage.PhotoBucket,
		"video_bucket": cfg.Storage.VideoBucket,
	})

	p.storage = storage
	return nil
}

// GetStorage returns the initialized backend.
func (p *Provider) GetStorage() (types.ObjectStorage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.storage == nil {
		return nil, ErrNotInitialized
	}
	return p.storage, nil
}

// MustGetStorage is GetStorage for wiring code that cannot continue without it.
func (p *Provider) MustGetStorage() types.ObjectStorage {
	storage, err := p.GetStorage()
	if err != nil {
		panic(err)
	}
	return storage
}

// IsInitialized reports whether Initialize has succeeded.
func (p *Provider) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.storage != nil
}

// Reset drops the backend. Tests only.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage = nil
}
