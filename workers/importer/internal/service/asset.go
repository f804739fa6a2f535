package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"adimporter/shared/observability/types"
	storagetypes "adimporter/shared/storage/types"

	"adimporter/workers/importer/internal/domain"
)

// Asset kinds, used as metric labels and in error text.
const (
	kindMainImage = "main_image"
	kindCard      = "card"
	kindVideo     = "video"
	kindPreview   = "preview"
)

// storedAsset is an object known to be in storage after ensureAsset.
type storedAsset struct {
	Bucket string
	Key    string
	// Data is nil when the object was already stored and nothing was fetched.
	Data []byte
}

// Path renders the asset location as "<bucket>/<key>".
func (a *storedAsset) Path() string {
	if a == nil {
		return ""
	}
	return a.Bucket + "/" + a.Key
}

// ensureAsset makes sure bucket/key holds the asset at assetURL, downloading
// and uploading it only when it is not stored yet. Storage calls go through
// the shared IO limiter here; downloads are gated per attempt by the client.
func (s *MediaService) ensureAsset(ctx context.Context, bucket, key, assetURL, kind string) (*storedAsset, error) {
	s.metrics.StartOperation("asset")
	defer s.metrics.EndOperation("asset")
	startTime := time.Now()
	defer func() {
		s.metrics.RecordDuration("asset", time.Since(startTime).Seconds())
	}()

	var exists bool
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		exists, err = s.storage.Exists(ctx, bucket, key)
		return err
	})
	if err != nil {
		// fall through to a fresh upload; Put overwrites
		s.logger.Warn(ctx, "Existence check failed", types.Fields{
			"bucket": bucket,
			"key":    key,
			"error":  err.Error(),
		})
	}
	if exists {
		s.logger.Debug(ctx, "Asset already stored", types.Fields{"bucket": bucket, "key": key})
		return &storedAsset{Bucket: bucket, Key: key}, nil
	}

	if err := validateURL(assetURL); err != nil {
		s.metrics.RecordError("download", "validation_error")
		return nil, err
	}

	// the client takes an IO slot per attempt, not across its retries
	asset, err := s.client.Download(ctx, assetURL)
	if err != nil {
		errorType := categorizeError(err)
		s.metrics.RecordError("download", errorType)
		s.logger.Warn(ctx, "Failed to download asset", types.Fields{
			"url":        assetURL,
			"kind":       kind,
			"error_type": errorType,
			"error":      err.Error(),
		})
		return nil, domain.NewDomainError(
			domain.ErrCodeDownloadFailed,
			fmt.Sprintf("%s download failed", kind),
			err,
			true,
		)
	}
	s.metrics.RecordSuccess("download")
	s.metrics.RecordFileSize(kind, int64(len(asset.Data)))

	metadata := storagetypes.ObjectMetadata{
		ContentType:   contentTypeFor(asset.ContentType, kind),
		ContentLength: int64(len(asset.Data)),
		UserMetadata: map[string]string{
			"source-url": assetURL,
			"sha256":     checksum(asset.Data),
		},
	}
	err = s.limiter.Do(ctx, func(ctx context.Context) error {
		return s.storage.Put(ctx, bucket, key, bytes.NewReader(asset.Data), metadata)
	})
	if err != nil {
		errorType := categorizeError(err)
		s.metrics.RecordError("upload", errorType)
		s.logger.Warn(ctx, "Failed to upload asset", types.Fields{
			"bucket":     bucket,
			"key":        key,
			"error_type": errorType,
			"error":      err.Error(),
		})
		return nil, domain.NewDomainError(
			domain.ErrCodeUploadFailed,
			fmt.Sprintf("%s upload failed", kind),
			err,
			true,
		)
	}
	s.metrics.RecordSuccess("upload")

	return &storedAsset{Bucket: bucket, Key: key, Data: asset.Data}, nil
}

// readBack returns the bytes of a stored asset, fetching them from storage
// when they were not downloaded in this run.
func (s *MediaService) readBack(ctx context.Context, a *storedAsset) ([]byte, error) {
	if a.Data != nil {
		return a.Data, nil
	}

	var data []byte
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		rc, err := s.storage.Get(ctx, a.Bucket, a.Key)
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", a.Path(), err)
	}
	return data, nil
}

// validateURL accepts absolute http(s) URLs only
func validateURL(assetURL string) error {
	if assetURL == "" {
		return domain.ErrInvalidURL
	}

	u, err := url.Parse(assetURL)
	if err != nil {
		return domain.NewDomainError(
			domain.ErrInvalidURL.Code,
			"Failed to parse URL",
			err,
			false,
		)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.NewDomainError(
			domain.ErrInvalidURL.Code,
			"Only HTTP and HTTPS URLs are supported",
			nil,
			false,
		)
	}

	return nil
}

// contentTypeFor keeps the served content type unless it is missing or generic.
func contentTypeFor(served, kind string) string {
	ct := strings.TrimSpace(strings.ToLower(served))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct != "" && ct != "application/octet-stream" && ct != "binary/octet-stream" {
		return ct
	}
	if kind == kindVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// categorizeError categorizes errors for metrics
func categorizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, storagetypes.ErrObjectNotFound) {
		return "not_found"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection"):
		return "connection"
	case strings.Contains(errStr, "404") || strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "403") || strings.Contains(errStr, "forbidden"):
		return "forbidden"
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "unauthorized"):
		return "unauthorized"
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "server"):
		return "server_error"
	default:
		return "unknown"
	}
}
