// Package logger writes one JSON object per line, shaped for Loki's json
// parser: a fixed set of standard keys plus free-form fields.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"adimporter/shared/observability/types"
)

// LogLevel is the severity of an entry.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

// ParseLevel maps a level name to a LogLevel. Unknown names mean info.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// reserved keys cannot be overwritten by caller fields.
var reserved = map[string]bool{
	"timestamp": true, "level": true, "service": true, "env": true,
	"hostname": true, "message": true, "error": true, "error_type": true,
}

// contextKeys are lifted from the context into every entry when present.
var contextKeys = []types.ContextKey{types.TraceIDKey, types.RequestIDKey, types.JobIDKey}

// sink is shared by a logger and everything derived from it through
// WithFields, so concurrent record workers never interleave partial lines.
type sink struct {
	mu       sync.Mutex
	out      io.Writer
	service  string
	env      string
	hostname string
	min      LogLevel
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(line)
}

// LokiLogger implements types.Logger.
type LokiLogger struct {
	sink   *sink
	fields types.Fields
}

// New creates a logger. A nil output means os.Stdout.
func New(serviceName, environment, logLevel string, output io.Writer, fields types.Fields) *LokiLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	if output == nil {
		output = os.Stdout
	}

	return &LokiLogger{
		sink: &sink{
			out:      output,
			service:  serviceName,
			env:      environment,
			hostname: hostname,
			min:      ParseLevel(logLevel),
		},
		fields: fields,
	}
}

func (l *LokiLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, InfoLevel, msg, nil, fields)
}

// Error logs at error level; err is recorded with its dynamic type.
func (l *LokiLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	l.log(ctx, ErrorLevel, msg, err, fields)
}

func (l *LokiLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, WarnLevel, msg, nil, fields)
}

func (l *LokiLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, DebugLevel, msg, nil, fields)
}

// WithFields returns a child logger; the receiver is left unchanged.
func (l *LokiLogger) WithFields(fields types.Fields) types.Logger {
	merged := make(types.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &LokiLogger{sink: l.sink, fields: merged}
}

func (l *LokiLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields types.Fields) {
	if level < l.sink.min {
		return
	}

	entry := make(types.Fields, 10+len(l.fields)+len(fields))
	for _, set := range []types.Fields{l.fields, fields} {
		for k, v := range set {
			if !reserved[k] {
				entry[k] = v
			}
		}
	}

	if ctx != nil {
		for _, key := range contextKeys {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				entry[string(key)] = v
			}
		}
	}

	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["service"] = l.sink.service
	entry["env"] = l.sink.env
	entry["hostname"] = l.sink.hostname
	entry["message"] = msg
	if err != nil {
		entry["error"] = err.Error()
		entry["error_type"] = fmt.Sprintf("%T", err)
	}

	line, mErr := json.Marshal(entry)
	if mErr != nil {
		// an unencodable field must not swallow the entry
		line, _ = json.Marshal(types.Fields{
			"timestamp": entry["timestamp"],
			"level":     entry["level"],
			"service":   l.sink.service,
			"message":   msg,
			"log_error": mErr.Error(),
		})
	}
	l.sink.write(append(line, '\n'))
}
