package config

// parse reads configuration from environment variables on top of DefaultConfig
func parse() (*Config, error) {
	d := DefaultConfig()

	cfg := &Config{
		// Core
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", d.ServiceName),
		LogLevel:    getEnv("LOG_LEVEL", d.LogLevel),
		Version:     getEnv("SERVICE_VERSION", d.Version),

		// HTTP Configuration
		HTTP: HTTPConfig{
			Timeout:       getDuration("HTTP_TIMEOUT", d.HTTP.Timeout),
			MaxRetries:    getInt("HTTP_MAX_RETRIES", d.HTTP.MaxRetries),
			UserAgent:     getEnv("HTTP_USER_AGENT", d.HTTP.UserAgent),
			Addr:          getEnv("HTTP_ADDR", d.HTTP.Addr),
			MaxAssetBytes: getInt64("HTTP_MAX_ASSET_BYTES", d.HTTP.MaxAssetBytes),
		},

		// Storage Configuration
		Storage: StorageConfig{
			Provider:    getEnv("STORAGE_PROVIDER", d.Storage.Provider),
			PhotoBucket: getEnv("STORAGE_PHOTO_BUCKET", ""),
			VideoBucket: getEnv("STORAGE_VIDEO_BUCKET", ""),
			BasePath:    getEnv("STORAGE_BASE_PATH", ""),
			Timeout:     getDuration("STORAGE_TIMEOUT", d.Storage.Timeout),
			MaxRetries:  getInt("STORAGE_MAX_RETRIES", d.Storage.MaxRetries),
			S3: S3Config{
				Region:          getEnv("AWS_REGION", d.Storage.S3.Region),
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
			},
		},

		// Database Configuration
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", d.Database.Host),
			Port:         getInt("DB_PORT", d.Database.Port),
			Database:     getEnv("DB_NAME", d.Database.Database),
			Username:     getEnv("DB_USER", d.Database.Username),
			Password:     getEnv("DB_PASSWORD", d.Database.Password),
			SSLMode:      getEnv("DB_SSL_MODE", d.Database.SSLMode),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},

		// Import Configuration
		Import: ImportConfig{
			RecordConcurrency:  getInt("IMPORT_RECORD_CONCURRENCY", d.Import.RecordConcurrency),
			IOConcurrency:      getInt("IMPORT_IO_CONCURRENCY", d.Import.IOConcurrency),
			RecordTimeout:      getDuration("IMPORT_RECORD_TIMEOUT", d.Import.RecordTimeout),
			ProgressInterval:   getDuration("IMPORT_PROGRESS_INTERVAL", d.Import.ProgressInterval),
			HeartbeatInterval:  getDuration("IMPORT_HEARTBEAT_INTERVAL", d.Import.HeartbeatInterval),
			CancelPollInterval: getDuration("IMPORT_CANCEL_POLL_INTERVAL", d.Import.CancelPollInterval),
			SkipExisting:       getBool("IMPORT_SKIP_EXISTING", d.Import.SkipExisting),
			WorkDir:            getEnv("IMPORT_WORK_DIR", d.Import.WorkDir),
			WorkerBinary:       getEnv("IMPORT_WORKER_BINARY", d.Import.WorkerBinary),
			CancelTransport:    getEnv("IMPORT_CANCEL_TRANSPORT", d.Import.CancelTransport),
			JobStore:           getEnv("IMPORT_JOB_STORE", d.Import.JobStore),
			XLSXReport:         getBool("IMPORT_XLSX_REPORT", d.Import.XLSXReport),
			DebugTailLines:     getInt("IMPORT_DEBUG_TAIL_LINES", d.Import.DebugTailLines),
			MaxBatchBytes:      getInt64("IMPORT_MAX_BATCH_BYTES", d.Import.MaxBatchBytes),
		},

		// Cluster Configuration
		Cluster: ClusterConfig{
			Threshold: getInt("CLUSTER_THRESHOLD", d.Cluster.Threshold),
			HashGrid:  getInt("CLUSTER_HASH_GRID", d.Cluster.HashGrid),
		},

		// RabbitMQ Configuration
		RabbitMQ: RabbitMQConfig{
			Enabled:     getBool("RABBITMQ_ENABLED", false),
			URL:         getEnv("RABBITMQ_URL", d.RabbitMQ.URL),
			EventsQueue: getEnv("RABBITMQ_EVENTS_QUEUE", d.RabbitMQ.EventsQueue),
			Timeout:     getDuration("RABBITMQ_TIMEOUT", d.RabbitMQ.Timeout),
		},

		Observability: ObservabilityConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		},
	}

	// Apply defaults
	cfg.applyDefaults()

	return cfg, nil
}
