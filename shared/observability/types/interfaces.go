// Package types holds the observability contracts shared by every process
// of the import pipeline. Services depend on these interfaces, never on the
// concrete Loki logger or Prometheus collectors.
package types

import (
	"context"
	"io"
)

// Logger is a leveled, structured logger. Implementations lift the trace,
// request and job ids out of ctx.
type Logger interface {
	Info(ctx context.Context, msg string, fields Fields)
	Error(ctx context.Context, msg string, err error, fields Fields)
	// Warn is for failures that do not stop the unit of work, e.g. one asset
	// of a creative failing to download.
	Warn(ctx context.Context, msg string, fields Fields)
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a child logger carrying fields on every entry.
	WithFields(fields Fields) Logger
}

// Metrics records per-component operation metrics.
type Metrics interface {
	RecordSuccess(operationType string)
	// RecordError counts a failure; errorType is a small fixed vocabulary
	// such as "timeout", "not_found" or "server_error".
	RecordError(operationType string, errorType string)
	// RecordDuration takes seconds.
	RecordDuration(operation string, duration float64)
	// RecordFileSize takes the asset kind ("main_image", "card", "video",
	// "preview") and its size in bytes.
	RecordFileSize(fileType string, bytes int64)
	// StartOperation and EndOperation move the in-progress gauge.
	StartOperation(operation string)
	EndOperation(operation string)
}

// Fields are structured log fields. Values must be JSON encodable.
type Fields map[string]interface{}

// ContextKey is the type of the context keys the logger lifts into every entry.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	RequestIDKey ContextKey = "request_id"
	JobIDKey     ContextKey = "job_id"
)

// WithJobID returns a context carrying the import job id for log correlation.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithRequestID returns a context carrying an API request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// Config configures a Provider.
type Config struct {
	// ServiceName prefixes logger service names and metric names.
	ServiceName string
	Environment string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogOutput defaults to os.Stdout. The worker uses os.Stderr because its
	// stdout carries the event protocol.
	LogOutput        io.Writer
	AdditionalFields Fields
}

// Provider hands out one Logger and one Metrics per component name.
type Provider interface {
	Logger(component string) Logger
	Metrics(component string) Metrics
	Close() error
}
