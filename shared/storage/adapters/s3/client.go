// Package s3 stores creative media in AWS S3 or an S3-compatible endpoint
// such as MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"adimporter/shared/config"
	"adimporter/shared/observability"
	"adimporter/shared/storage/types"
)

// api is the subset of the S3 SDK the client calls.
type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	s3.ListObjectsV2APIClient
}

// Client is the S3 ObjectStorage.
type Client struct {
	api     api
	region  string
	logger  observability.Logger
	metrics observability.Metrics

	// buckets confirmed by EnsureBucket
	ready sync.Map
}

// NewClient builds an SDK client from cfg. Buckets are not touched until
// EnsureBucket.
func NewClient(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (*Client, error) {
	awsCfg, err := loadAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	sdk := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})
	return newClient(sdk, cfg.S3.Region, logger, metrics), nil
}

func newClient(sdk api, region string, logger observability.Logger, metrics observability.Metrics) *Client {
	return &Client{api: sdk, region: region, logger: logger, metrics: metrics}
}

// observe records the outcome of one SDK call under "s3_<op>".
func (c *Client) observe(op string, start time.Time, err error) {
	name := "s3_" + op
	c.metrics.RecordDuration(name, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError(name, "api")
		return
	}
	c.metrics.RecordSuccess(name)
}

// Put overwrites bucket/key. The body is buffered because request signing
// needs a seekable payload.
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) error {
	var body bytes.Buffer
	if _, err := io.Copy(&body, reader); err != nil {
		c.metrics.RecordError("s3_put", "read")
		return fmt.Errorf("failed to read content: %w", err)
	}
	size := int64(body.Len())

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body.Bytes()),
		ContentLength: aws.Int64(size),
		Metadata:      metadata.UserMetadata,
	}
	if metadata.ContentType != "" {
		in.ContentType = aws.String(metadata.ContentType)
	}
	if metadata.CacheControl != "" {
		in.CacheControl = aws.String(metadata.CacheControl)
	}

	start := time.Now()
	_, err := c.api.PutObject(ctx, in)
	c.observe("put", start, err)
	if err != nil {
		c.logger.Error(ctx, "S3 upload failed", err, observability.Fields{"bucket": bucket, "key": key})
		return fmt.Errorf("failed to put object: %w", err)
	}

	c.metrics.RecordFileSize("s3_object", size)
	c.logger.Debug(ctx, "S3 object written", observability.Fields{"bucket": bucket, "key": key, "size": size})
	return nil
}

func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	start := time.Now()
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return nil, types.ErrObjectNotFound
	}
	c.observe("get", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	start := time.Now()
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	c.observe("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists issues a HeadObject; a 404 is (false, nil).
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	start := time.Now()
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return false, nil
	}
	c.observe("exists", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

func (c *Client) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}

	start := time.Now()
	var objects []types.ObjectInfo
	pages := s3.NewListObjectsV2Paginator(c.api, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			c.observe("list", start, err)
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}
	c.observe("list", start, nil)
	return objects, nil
}

// EnsureBucket creates bucket unless HeadBucket already finds it. A bucket
// created concurrently by another worker counts as success.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	if _, ok := c.ready.Load(bucket); ok {
		return nil
	}

	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	switch {
	case err == nil:
	case isNotFound(err):
		if err := c.createBucket(ctx, bucket); err != nil {
			return err
		}
	default:
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	c.ready.Store(bucket, struct{}{})
	return nil
}

func (c *Client) createBucket(ctx context.Context, bucket string) error {
	c.logger.Info(ctx, "Creating bucket", observability.Fields{"bucket": bucket, "region": c.region})

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if c.region != "" && c.region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.region),
		}
	}

	_, err := c.api.CreateBucket(ctx, in)
	var exists *s3types.BucketAlreadyExists
	var owned *s3types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &exists) && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func loadAWSConfig(cfg *config.StorageConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
		awsconfig.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	var noBucket *s3types.NoSuchBucket
	return errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket)
}
