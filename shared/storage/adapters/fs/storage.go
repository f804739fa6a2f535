// Package fs implements ObjectStorage on the local filesystem. Buckets are
// directories under a base path; each object may carry a JSON metadata
// sidecar. It backs local runs and end-to-end tests.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"adimporter/shared/observability"
	"adimporter/shared/storage/types"
)

const metadataSuffix = ".metadata.json"

// Storage implements ObjectStorage using the local filesystem
type Storage struct {
	basePath string
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewStorage creates a new filesystem-based object storage rooted at basePath.
func NewStorage(basePath string, logger observability.Logger, metrics observability.Metrics) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &Storage{
		basePath: basePath,
		logger:   logger.WithFields(observability.Fields{"storage": "filesystem"}),
		metrics:  metrics,
	}, nil
}

// Put writes the object through a temp file and a rename so concurrent
// writers to the same key never leave a torn file behind.
func (s *Storage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("fs_put", time.Since(start).Seconds())
	}()

	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		s.metrics.RecordError("fs_put", "mkdir")
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), ".upload-*")
	if err != nil {
		s.metrics.RecordError("fs_put", "create")
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.metrics.RecordError("fs_put", "write")
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := os.Rename(tmp.Name(), objectPath); err != nil {
		s.metrics.RecordError("fs_put", "rename")
		return fmt.Errorf("failed to commit object: %w", err)
	}

	metadata.ContentLength = written
	if err := s.saveMetadata(objectPath, metadata); err != nil {
		s.metrics.RecordError("fs_put", "metadata")
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	s.metrics.RecordSuccess("fs_put")
	s.metrics.RecordFileSize("fs_object", written)
	s.logger.Debug(ctx, "Object stored", observability.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  written,
	})

	return nil
}

// Get retrieves an object
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(objectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.ErrObjectNotFound
		}
		s.metrics.RecordError("fs_get", "open")
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	s.metrics.RecordSuccess("fs_get")
	return file, nil
}

// Metadata returns the sidecar metadata stored with an object.
func (s *Storage) Metadata(bucket, key string) (types.ObjectMetadata, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return types.ObjectMetadata{}, err
	}

	data, err := os.ReadFile(objectPath + metadataSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.ObjectMetadata{}, types.ErrObjectNotFound
		}
		return types.ObjectMetadata{}, err
	}

	var metadata types.ObjectMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return types.ObjectMetadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

// Delete removes an object and its metadata sidecar
func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(objectPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.metrics.RecordError("fs_delete", "remove")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	_ = os.Remove(objectPath + metadataSuffix)

	return nil
}

// Exists checks if an object exists
func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	objectPath, err := s.objectPath(bucket, key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(objectPath)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object existence: %w", err)
}

// List returns objects in a bucket with optional prefix, keyed with forward slashes.
func (s *Storage) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	bucketPath := filepath.Join(s.basePath, bucket)

	var objects []types.ObjectInfo
	err := filepath.WalkDir(bucketPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metadataSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}

		relPath, err := filepath.Rel(bucketPath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, types.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		s.metrics.RecordError("fs_list", "walk")
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return objects, nil
}

// EnsureBucket creates the bucket directory
func (s *Storage) EnsureBucket(ctx context.Context, bucket string) error {
	if err := os.MkdirAll(filepath.Join(s.basePath, bucket), 0o755); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// objectPath maps bucket/key to a path under basePath, rejecting keys that
// would escape the bucket directory.
func (s *Storage) objectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", types.ErrInvalidLocation, bucket)
	}
	bucketPath := filepath.Join(s.basePath, bucket)
	full := filepath.Join(bucketPath, filepath.FromSlash(strings.TrimPrefix(key, "/")))

	rel, err := filepath.Rel(bucketPath, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key %q", types.ErrInvalidLocation, key)
	}
	return full, nil
}

func (s *Storage) saveMetadata(objectPath string, metadata types.ObjectMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(objectPath+metadataSuffix, data, 0o644)
}
