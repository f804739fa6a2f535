package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	HTTP          HTTPConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Cluster       ClusterConfig
	RabbitMQ      RabbitMQConfig
	Observability ObservabilityConfig
}

// HTTPConfig holds the asset fetch client settings and the API listen address
type HTTPConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	UserAgent     string
	Addr          string // Server address for the job-control API
	MaxAssetBytes int64
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Provider    string // s3 | fs
	PhotoBucket string
	VideoBucket string
	BasePath    string // root directory for the fs provider
	Timeout     time.Duration
	MaxRetries  int
	S3          S3Config
}

// S3Config holds S3 specific configuration
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // custom endpoint (MinIO, LocalStack)
	UsePathStyle    bool
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// ImportConfig controls the worker process and the job orchestrator
type ImportConfig struct {
	RecordConcurrency  int
	IOConcurrency      int
	RecordTimeout      time.Duration
	ProgressInterval   time.Duration
	HeartbeatInterval  time.Duration
	CancelPollInterval time.Duration
	SkipExisting       bool
	WorkDir            string
	WorkerBinary       string
	CancelTransport    string // file | database
	JobStore           string // postgres | memory
	XLSXReport         bool
	DebugTailLines     int
	MaxBatchBytes      int64
}

// ClusterConfig tunes perceptual hashing and near-duplicate clustering
type ClusterConfig struct {
	Threshold int
	HashGrid  int
}

// RabbitMQConfig holds the event mirror settings
type RabbitMQConfig struct {
	Enabled     bool
	URL         string
	EventsQueue string
	Timeout     time.Duration
}

// ObservabilityConfig holds metrics export settings
type ObservabilityConfig struct {
	PushgatewayURL string
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	// Core validations
	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	errors = append(errors, c.Storage.validate()...)
	errors = append(errors, c.Import.validate()...)

	// Range validations
	if c.HTTP.Timeout <= 0 {
		errors = append(errors, "HTTP_TIMEOUT must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		errors = append(errors, "HTTP_MAX_RETRIES cannot be negative")
	}
	if c.HTTP.MaxAssetBytes <= 0 {
		errors = append(errors, "HTTP_MAX_ASSET_BYTES must be positive")
	}
	if c.Cluster.Threshold < 0 {
		errors = append(errors, "CLUSTER_THRESHOLD cannot be negative")
	}
	if c.Cluster.HashGrid <= 0 || c.Cluster.HashGrid%8 != 0 {
		errors = append(errors, "CLUSTER_HASH_GRID must be a positive multiple of 8")
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		errors = append(errors, "RABBITMQ_URL is required when RABBITMQ_ENABLED is set")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s StorageConfig) validate() []string {
	var errors []string
	switch s.Provider {
	case "s3":
		if s.S3.Region == "" {
			errors = append(errors, "AWS_REGION is required for the s3 provider")
		}
	case "fs":
		if s.BasePath == "" {
			errors = append(errors, "STORAGE_BASE_PATH is required for the fs provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("unsupported STORAGE_PROVIDER %q", s.Provider))
	}
	if s.PhotoBucket == "" || s.VideoBucket == "" {
		errors = append(errors, "STORAGE_PHOTO_BUCKET and STORAGE_VIDEO_BUCKET are required")
	}
	return errors
}

func (i ImportConfig) validate() []string {
	var errors []string
	if i.RecordConcurrency <= 0 {
		errors = append(errors, "IMPORT_RECORD_CONCURRENCY must be positive")
	}
	// the IO pool is shared by every record in flight, each of which may fan out to several assets
	if i.IOConcurrency < 3*i.RecordConcurrency {
		errors = append(errors, "IMPORT_IO_CONCURRENCY must be at least 3x IMPORT_RECORD_CONCURRENCY")
	}
	if i.RecordTimeout <= 0 {
		errors = append(errors, "IMPORT_RECORD_TIMEOUT must be positive")
	}
	if i.ProgressInterval <= 0 || i.HeartbeatInterval <= 0 || i.CancelPollInterval <= 0 {
		errors = append(errors, "IMPORT_*_INTERVAL values must be positive")
	}
	if i.CancelTransport != "file" && i.CancelTransport != "database" {
		errors = append(errors, fmt.Sprintf("unsupported IMPORT_CANCEL_TRANSPORT %q", i.CancelTransport))
	}
	if i.JobStore != "postgres" && i.JobStore != "memory" {
		errors = append(errors, fmt.Sprintf("unsupported IMPORT_JOB_STORE %q", i.JobStore))
	}
	if i.JobStore == "memory" && i.CancelTransport == "database" {
		errors = append(errors, "IMPORT_CANCEL_TRANSPORT=database requires IMPORT_JOB_STORE=postgres")
	}
	if i.WorkDir == "" {
		errors = append(errors, "IMPORT_WORK_DIR is required")
	}
	return errors
}

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	env := strings.ToLower(c.Environment)

	if c.Storage.PhotoBucket == "" {
		c.Storage.PhotoBucket = fmt.Sprintf("ad-creatives-%s-photos", env)
	}
	if c.Storage.VideoBucket == "" {
		c.Storage.VideoBucket = fmt.Sprintf("ad-creatives-%s-videos", env)
	}

	if c.IsProduction() {
		if c.HTTP.MaxRetries < 3 {
			c.HTTP.MaxRetries = 3
		}
	}

	if c.IsLocal() && c.Storage.Provider == "fs" && c.Storage.BasePath == "" {
		c.Storage.BasePath = "./data/objects"
	}
}

// DSN renders the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

// Environment detection methods

// IsLocal returns true if running in local/development environment
func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	env := strings.ToLower(c.Environment)
	return env == "test" || env == "testing"
}
