// Package observability provides a centralized provider for logging and metrics
// components used by the importer worker and the job orchestrator.
package observability

import (
	"context"
	"io"
	"os"
	"sync"

	"adimporter/shared/observability/logger"
	"adimporter/shared/observability/metrics"
	"adimporter/shared/observability/types"
)

// Aliases so callers only import this package.
type (
	Logger   = types.Logger
	Metrics  = types.Metrics
	Fields   = types.Fields
	Config   = types.Config
	Provider = types.Provider
)

// DefaultProvider hands out one logger and one metrics set per component,
// created on first use.
type DefaultProvider struct {
	config *Config

	mu      sync.Mutex
	loggers map[string]Logger
	metrics map[string]Metrics
}

// NewProvider creates a provider. A nil LogOutput means os.Stdout; the worker
// passes os.Stderr because its stdout carries the event protocol.
func NewProvider(config *Config) Provider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}
	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]Logger),
		metrics: make(map[string]Metrics),
	}
}

// Logger returns the logger of component. Entries carry the provider's
// additional fields, a "component" field and the service name
// "<service>.<component>".
func (p *DefaultProvider) Logger(component string) Logger {
	return lazy(&p.mu, p.loggers, component, func() Logger {
		fields := make(Fields, len(p.config.AdditionalFields)+1)
		for k, v := range p.config.AdditionalFields {
			fields[k] = v
		}
		fields["component"] = component

		return logger.New(
			p.config.ServiceName+"."+component,
			p.config.Environment,
			p.config.LogLevel,
			p.config.LogOutput,
			fields,
		)
	})
}

// Metrics returns the collectors of component, registered under the
// "<service>_<component>" prefix so the worker and the orchestrator never
// collide on a shared Pushgateway.
func (p *DefaultProvider) Metrics(component string) Metrics {
	return lazy(&p.mu, p.metrics, component, func() Metrics {
		return metrics.New(p.config.ServiceName + "_" + component)
	})
}

// Close closes LogOutput when it is a closer other than stdout or stderr.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	closer, ok := p.config.LogOutput.(io.Closer)
	if !ok || closer == os.Stdout || closer == os.Stderr {
		return nil
	}
	return closer.Close()
}

func lazy[T any](mu *sync.Mutex, cache map[string]T, key string, create func() T) T {
	mu.Lock()
	defer mu.Unlock()

	if v, ok := cache[key]; ok {
		return v
	}
	v := create()
	cache[key] = v
	return v
}

// WithJobID returns a context carrying the import job id for log correlation.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return types.WithJobID(ctx, jobID)
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return logger.New("nop", "test", "error", io.Discard, nil)
}
