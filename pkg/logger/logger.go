// Package logger provides the structured logger shared by every component.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	operationIDKey contextKey = "operation_id"
	requestIDKey   contextKey = "request_id"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string    `yaml:"level" env:"VOTE_LOG_LEVEL"`
	Format string    `yaml:"format" env:"VOTE_LOG_FORMAT"` // text or json
	Output io.Writer `yaml:"-"`
}

// Logger is a module-scoped logrus logger.
type Logger struct {
	*logrus.Logger
	module string
}

// New builds a logger from configuration.
func New(module string, cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stderr)
	}

	return &Logger{Logger: base, module: module}
}

// NewDefault returns an info-level text logger for the given module.
func NewDefault(module string) *Logger {
	return New(module, LoggingConfig{})
}

// Named returns a logger for another module sharing the same sink and level.
func (l *Logger) Named(module string) *Logger {
	return &Logger{Logger: l.Logger, module: module}
}

// Module returns the module name attached to every entry.
func (l *Logger) Module() string { return l.module }

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithField("module", l.module)
}

// WithField returns an entry carrying the module and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields returns an entry carrying the module and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry().WithFields(logrus.Fields(fields))
}

// WithError returns an entry carrying the module and the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// WithContext returns an entry enriched with values found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	e := l.entry().WithContext(ctx)
	if ctx == nil {
		return e
	}
	if id, ok := ctx.Value(operationIDKey).(string); ok && id != "" {
		e = e.WithField("operation_id", id)
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		e = e.WithField("request_id", id)
	}
	return e
}

// ContextWithOperationID tags ctx so WithContext includes the operation id.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext returns the operation id stored in ctx, if any.
func OperationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(operationIDKey).(string)
	return id
}

// ContextWithRequestID tags ctx so WithContext includes the HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
