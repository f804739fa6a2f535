// Package types defines the object storage contract shared by the importer
// and the orchestrator. Creative media lands in two buckets (photos and
// videos) with keys namespaced by the creative id.
package types

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is a bucket/key blob store. Put overwrites, so re-importing a
// creative converges on the same objects instead of duplicating them.
type ObjectStorage interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ObjectMetadata) error
	// Get returns ErrObjectNotFound for a missing key.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	// Exists reports (false, nil) for a missing key; errors mean the store
	// could not answer.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// EnsureBucket creates bucket when it is missing.
	EnsureBucket(ctx context.Context, bucket string) error
}

// ObjectMetadata travels with an object on Put.
type ObjectMetadata struct {
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	CacheControl  string            `json:"cache_control,omitempty"`
	UserMetadata  map[string]string `json:"user_metadata,omitempty"`
}

// ObjectInfo is one List entry.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}
