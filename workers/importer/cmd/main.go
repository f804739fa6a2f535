package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"adimporter/shared/cancel"
	"adimporter/shared/config"
	"adimporter/shared/database"
	"adimporter/shared/events"
	"adimporter/shared/ingest"
	"adimporter/shared/observability"
	"adimporter/shared/phash"
	"adimporter/shared/queue"
	"adimporter/shared/repository"
	"adimporter/shared/storage"
	"adimporter/shared/utils"

	fetch "adimporter/workers/importer/internal/adapters/http"
	"adimporter/workers/importer/internal/limiter"
	"adimporter/workers/importer/internal/service"
	"adimporter/workers/importer/internal/worker"
)

func main() {
	os.Exit(run())
}

// Dependencies holds all initialized infrastructure components
type Dependencies struct {
	cfg       *config.Config
	env       utils.WorkerEnv
	obs       observability.Provider
	db        *database.DB
	publisher *queue.Publisher
	logger    observability.Logger
}

// run returns the process exit code: 0 once the batch reaches a terminal
// state, 1 when the worker could not even start.
func run() int {
	cfg, err := loadConfiguration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		return 1
	}

	env, err := utils.LoadWorkerEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		return 1
	}

	ctx, cancelRun := context.WithCancel(observability.WithJobID(context.Background(), env.JobID))
	defer cancelRun()

	deps, err := initializeDependencies(ctx, cfg, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		return 1
	}
	defer deps.close()

	records, err := loadBatch(env.BatchFile)
	if err != nil {
		deps.logger.Error(ctx, "Failed to load batch", err, observability.Fields{"batch_file": env.BatchFile})
		return 1
	}

	runner, err := buildRunner(ctx, deps)
	if err != nil {
		deps.logger.Error(ctx, "Failed to build worker", err, nil)
		return 1
	}

	handleSignals(ctx, runner, cancelRun, deps.logger)

	result, err := runner.Run(ctx, records)
	if err != nil {
		deps.logger.Error(ctx, "Import could not start", err, nil)
		return 1
	}

	pushMetrics(ctx, deps)

	deps.logger.Info(ctx, "Worker exiting", observability.Fields{"status": result.Status})
	return 0
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() (*config.Config, error) {
	cfgProvider := config.GetProvider()
	if err := cfgProvider.Load(); err != nil {
		return nil, err
	}
	return cfgProvider.Get()
}

// initializeDependencies sets up all infrastructure dependencies
func initializeDependencies(ctx context.Context, cfg *config.Config, env utils.WorkerEnv) (*Dependencies, error) {
	// stdout carries the event protocol, so logs go to stderr
	obs := observability.NewProvider(&observability.Config{
		ServiceName: "importer",
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		LogOutput:   os.Stderr,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})
	logger := obs.Logger("worker")

	logger.Info(ctx, "Starting worker", observability.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.Version,
		"environment": cfg.Environment,
		"pid":         os.Getpid(),
	})

	deps := &Dependencies{cfg: cfg, env: env, obs: obs, logger: logger}

	if err := storage.GetProvider().Initialize(cfg, obs.Logger("storage"), obs.Metrics("storage")); err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	db, err := database.NewPostgres(ctx, &cfg.Database, obs.Logger("database"), obs.Metrics("database"))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	deps.db = db

	if err := repository.EnsureSchema(ctx, db); err != nil {
		deps.close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	if cfg.RabbitMQ.Enabled {
		publisher, err := queue.NewPublisher(&cfg.RabbitMQ, obs.Logger("queue"), obs.Metrics("queue"))
		if err != nil {
			// the stdout stream is authoritative; the mirror is best effort
			logger.Error(ctx, "Event mirror unavailable", err, nil)
		} else {
			deps.publisher = publisher
		}
	}

	return deps, nil
}

func (d *Dependencies) close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	_ = d.obs.Close()
}

// loadBatch reads the normalized batch written by the orchestrator
func loadBatch(path string) ([]ingest.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return ingest.Normalize(data)
}

// buildRunner assembles the media service and the batch runner
func buildRunner(ctx context.Context, deps *Dependencies) (*worker.Runner, error) {
	cfg := deps.cfg

	hasher, err := phash.New(cfg.Cluster.HashGrid)
	if err != nil {
		return nil, err
	}

	db := deps.db
	ioLimiter := limiter.New(cfg.Import.IOConcurrency)
	creatives := repository.NewCreativeRepository(db, deps.obs.Logger("repository"), deps.obs.Metrics("repository"))

	media := service.NewMediaService(
		service.Config{
			PhotoBucket:  cfg.Storage.PhotoBucket,
			VideoBucket:  cfg.Storage.VideoBucket,
			SkipExisting: cfg.Import.SkipExisting,
		},
		fetch.NewClient(fetch.ConfigFrom(cfg.HTTP), fetch.WithGate(ioLimiter.Do)),
		storage.GetProvider().MustGetStorage(),
		creatives,
		hasher,
		ioLimiter,
		deps.obs.Logger("media"),
		deps.obs.Metrics("media"),
	)

	emitters := events.Multi{events.NewWriter(os.Stdout)}
	if deps.publisher != nil {
		emitters = append(emitters, deps.publisher)
	}

	var sig cancel.Signal
	switch cfg.Import.CancelTransport {
	case "database":
		sig = cancel.NewStoreSignal(repository.NewJobRepository(db, deps.obs.Logger("repository"), deps.obs.Metrics("repository")))
	default:
		workDir := deps.env.WorkDir
		if workDir == "" {
			workDir = cfg.Import.WorkDir
		}
		sig = cancel.NewFileSignal(workDir)
	}

	deps.logger.Debug(ctx, "Worker assembled", observability.Fields{
		"record_concurrency": cfg.Import.RecordConcurrency,
		"io_concurrency":     cfg.Import.IOConcurrency,
		"cancel_transport":   cfg.Import.CancelTransport,
	})

	return worker.NewRunner(
		worker.Config{
			JobID:              deps.env.JobID,
			ReportPath:         deps.env.ReportFile,
			RecordConcurrency:  cfg.Import.RecordConcurrency,
			RecordTimeout:      cfg.Import.RecordTimeout,
			ProgressInterval:   cfg.Import.ProgressInterval,
			HeartbeatInterval:  cfg.Import.HeartbeatInterval,
			CancelPollInterval: cfg.Import.CancelPollInterval,
			StartedAt:          deps.env.StartedAfter,
			XLSXReport:         cfg.Import.XLSXReport,
		},
		media,
		emitters,
		sig,
		deps.logger,
		deps.obs.Metrics("worker"),
	), nil
}

// handleSignals turns the first SIGTERM/SIGINT into a cooperative stop.
// Only a SIGINT after that cancels in-flight work; further SIGTERMs are
// ignored so a retried stop never aborts running records.
func handleSignals(ctx context.Context, runner *worker.Runner, cancelRun context.CancelFunc, logger observability.Logger) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(signals)

		stopping := false
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				if escalate(stopping, sig) {
					logger.Warn(ctx, "Interrupted again, aborting in-flight records", observability.Fields{"signal": sig.String()})
					cancelRun()
					return
				}
				if stopping {
					logger.Debug(ctx, "Stop already in progress", observability.Fields{"signal": sig.String()})
					continue
				}
				stopping = true
				logger.Info(ctx, "Stop signal received", observability.Fields{"signal": sig.String()})
				runner.Stop()
			}
		}
	}()
}

// escalate reports whether sig should cancel in-flight records.
func escalate(stopping bool, sig os.Signal) bool {
	return stopping && sig == syscall.SIGINT
}

// pushMetrics ships the worker's registry to the Pushgateway, if configured
func pushMetrics(ctx context.Context, deps *Dependencies) {
	url := deps.cfg.Observability.PushgatewayURL
	if url == "" {
		return
	}

	pusher := push.New(url, "importer").
		Gatherer(prometheus.DefaultGatherer).
		Grouping("job_id", deps.env.JobID)

	start := time.Now()
	if err := pusher.PushContext(ctx); err != nil {
		deps.logger.Error(ctx, "Failed to push metrics", err, observability.Fields{"pushgateway": url})
		return
	}
	deps.logger.Debug(ctx, "Metrics pushed", observability.Fields{"elapsed_ms": time.Since(start).Milliseconds()})
}
