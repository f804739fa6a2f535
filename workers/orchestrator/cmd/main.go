package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adimporter/shared/cancel"
	"adimporter/shared/config"
	"adimporter/shared/database"
	"adimporter/shared/observability"
	"adimporter/shared/repository"

	"adimporter/workers/orchestrator/internal/api"
	"adimporter/workers/orchestrator/internal/jobs"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

// Dependencies holds all initialized infrastructure components
type Dependencies struct {
	cfg    *config.Config
	obs    observability.Provider
	db     *database.DB
	logger observability.Logger
}

func run() error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	server := buildServer(deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	deps.logger.Info(context.Background(), "Shutdown signal received", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
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
func initializeDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	obs := observability.NewProvider(&observability.Config{
		ServiceName: "orchestrator",
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		LogOutput:   os.Stdout,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})
	logger := obs.Logger("server")

	logger.Info(ctx, "Starting orchestrator", observability.Fields{
		"service":          cfg.ServiceName,
		"version":          cfg.Version,
		"environment":      cfg.Environment,
		"job_store":        cfg.Import.JobStore,
		"cancel_transport": cfg.Import.CancelTransport,
		"worker_binary":    cfg.Import.WorkerBinary,
	})

	if err := os.MkdirAll(cfg.Import.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	deps := &Dependencies{cfg: cfg, obs: obs, logger: logger}

	db, err := database.NewPostgres(ctx, &cfg.Database, obs.Logger("database"), obs.Metrics("database"))
	if err != nil {
		if cfg.Import.JobStore == "postgres" {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		// a memory registry can run without a database; variations are disabled
		logger.Warn(ctx, "Database unavailable, creative endpoints disabled", observability.Fields{"error": err.Error()})
		return deps, nil
	}
	deps.db = db

	if err := repository.EnsureSchema(ctx, db); err != nil {
		deps.close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return deps, nil
}

func (d *Dependencies) close() {
	if d.db != nil {
		_ = d.db.Close()
	}
	_ = d.obs.Close()
}

// buildServer assembles the job registry, the orchestrator and the API
func buildServer(deps *Dependencies) *api.Server {
	cfg := deps.cfg

	var store jobs.Store = jobs.NewMemoryStore()
	if cfg.Import.JobStore == "postgres" && deps.db != nil {
		store = repository.NewJobRepository(deps.db, deps.obs.Logger("repository"), deps.obs.Metrics("repository"))
	}

	var sig cancel.Signal = cancel.NewFileSignal(cfg.Import.WorkDir)
	if cfg.Import.CancelTransport == "database" {
		sig = cancel.NewStoreSignal(store)
	}

	orchestrator := jobs.New(
		jobs.Config{
			WorkDir:        cfg.Import.WorkDir,
			DebugTailLines: cfg.Import.DebugTailLines,
		},
		store,
		&jobs.ExecSpawner{Binary: cfg.Import.WorkerBinary},
		sig,
		deps.obs.Logger("jobs"),
		deps.obs.Metrics("jobs"),
	)

	var hashes api.HashLister
	if deps.db != nil {
		hashes = repository.NewCreativeRepository(deps.db, deps.obs.Logger("repository"), deps.obs.Metrics("repository"))
	}

	server := api.NewServer(
		api.Config{
			ServiceName:      cfg.ServiceName,
			Addr:             cfg.HTTP.Addr,
			Timeout:          cfg.HTTP.Timeout,
			MaxBatchBytes:    cfg.Import.MaxBatchBytes,
			DefaultThreshold: cfg.Cluster.Threshold,
		},
		orchestrator,
		hashes,
		deps.obs.Logger("api"),
		deps.obs.Metrics("api"),
	)

	if deps.db != nil {
		server.AddReadinessCheck("database", deps.db.Ping)
	}
	server.AddReadinessCheck("work_dir", func(context.Context) error {
		info, err := os.Stat(cfg.Import.WorkDir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errors.New("not a directory")
		}
		return nil
	})

	return server
}
