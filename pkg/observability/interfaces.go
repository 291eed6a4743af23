// Package observability provides the logging, metrics, and tracing
// surface shared by the retrieval service components.
package observability

import "time"

// LogLevel represents a logging severity level
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the logging interface used across the service
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithPrefix(prefix string) Logger
}

// MetricsClient records operational metrics
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordLatency(operation string, duration time.Duration)
	Close() error
}

// Span is a minimal tracing span abstraction over OpenTelemetry
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	SetStatus(code int, description string)
	RecordError(err error)
}
