/*
Package observability provides structured logging and metrics collection
for the creative import pipeline.

Two processes share this layer: the importer worker, which writes its logs
to stderr because stdout carries the event protocol, and the job
orchestrator, which logs to stdout and serves /metrics.

# Architecture

	Provider (manages instances)
	    ├── Logger (JSON formatted for Loki)
	    └── Metrics (Prometheus compatible)

Each component (worker, media, fetch, orchestrator, api) gets its own logger
and metrics instance. Metric names are prefixed with the service and the
component so that both processes can register into the same Pushgateway or
scrape target without collisions.

# Usage

	provider := observability.NewProvider(&observability.Config{
	    ServiceName: "importer",
	    Environment: "production",
	    LogLevel:    "info",
	    LogOutput:   os.Stderr,
	})
	defer provider.Close()

	logger := provider.Logger("worker")
	metrics := provider.Metrics("worker")

	ctx := observability.WithJobID(context.Background(), jobID)
	logger.Info(ctx, "Batch loaded", observability.Fields{"total": 120})

	metrics.StartOperation("record")
	defer metrics.EndOperation("record")

# Querying

	{service="importer.worker"} | json | level="error"
	sum by (error_type) (rate(importer_media_errors_total[5m]))
*/
package observability
