// Package metrics provides Prometheus-compatible metrics collection
// for monitoring the import pipeline.
package metrics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements types.Metrics. Every series is prefixed with
// the sanitized component name.
type PrometheusMetrics struct {
	processedTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	fileSizeBytes   *prometheus.HistogramVec
	inProgress      *prometheus.GaugeVec
}

// New registers the component's collectors with prometheus.DefaultRegisterer.
// A second New for the same name reuses the collectors already registered.
func New(serviceName string) *PrometheusMetrics {
	name := SanitizeName(serviceName)

	return &PrometheusMetrics{
		processedTotal: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_processed_total",
				Help: fmt.Sprintf("Total processed items by %s", serviceName),
			},
			[]string{"status", "type"},
		)),
		errorsTotal: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_errors_total",
				Help: fmt.Sprintf("Total errors in %s", serviceName),
			},
			[]string{"error_type", "operation"},
		)),
		// record processing is bounded by a 3 minute timeout, so the buckets reach past it
		durationSeconds: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_duration_seconds",
				Help:    fmt.Sprintf("Operation duration in %s", serviceName),
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
			},
			[]string{"operation"},
		)),
		// 10KB up to 1GB
		fileSizeBytes: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_file_size_bytes",
				Help:    fmt.Sprintf("Asset sizes transferred by %s", serviceName),
				Buckets: prometheus.ExponentialBuckets(10240, 10, 6),
			},
			[]string{"file_type"},
		)),
		inProgress: register(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_in_progress",
				Help: fmt.Sprintf("Operations in progress in %s", serviceName),
			},
			[]string{"operation"},
		)),
	}
}

func register[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// SanitizeName maps a component name onto the Prometheus metric name charset.
func SanitizeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "app"
	}
	return b.String()
}

// RecordSuccess increments the success counter for a specific operation type.
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError counts a failed operation in both the processed and the
// detailed error counters.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration records the duration of an operation in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordFileSize records the size of a transferred asset in bytes.
func (m *PrometheusMetrics) RecordFileSize(fileType string, bytes int64) {
	m.fileSizeBytes.WithLabelValues(fileType).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge; pair it with EndOperation.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge for an operation.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}
