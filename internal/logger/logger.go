// Package logger provides structured logging for Replica Builder, backed by Zap.
// Configuration comes from environment variables so every binary that imports
// this package logs consistently without extra wiring.
package logger

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level
type Level int

const (
	// DebugLevel logs everything
	DebugLevel Level = iota
	// InfoLevel logs info, warnings, and errors
	InfoLevel
	// ErrorLevel logs only errors
	ErrorLevel
)

// Logger wraps zap.Logger to provide the logging interface used across the project
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

func init() {
	if l, err := NewFromEnv(); err == nil {
		globalLogger = l
	} else {
		globalLogger, _ = New(InfoLevel, true)
	}
}

// New creates a new logger with the specified level and output mode
func New(level Level, development bool) (*Logger, error) {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch level {
	case DebugLevel:
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case InfoLevel:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case ErrorLevel:
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	z, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}

	return &Logger{zap: z, sugar: z.Sugar()}, nil
}

// NewFromEnv creates a logger configured from REPLICA_LOG_LEVEL and
// REPLICA_LOG_FORMAT environment variables
func NewFromEnv() (*Logger, error) {
	level := LevelFromString(os.Getenv("REPLICA_LOG_LEVEL"))
	development := os.Getenv("REPLICA_LOG_FORMAT") != "json"
	return New(level, development)
}

// WithField adds a single field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	z := l.zap.With(zap.Any(key, value))
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	z := l.zap.With(zapFields...)
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	z := l.zap.With(zap.Error(err))
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithHTTPRequest adds HTTP request context to the logger
func (l *Logger) WithHTTPRequest(r *http.Request) *Logger {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	}
	if r.URL.RawQuery != "" {
		fields = append(fields, zap.String("query", r.URL.RawQuery))
	}
	z := l.zap.With(fields...)
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithDuration adds a duration field to the logger
func (l *Logger) WithDuration(duration time.Duration) *Logger {
	z := l.zap.With(
		zap.Duration("duration", duration),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	)
	return &Logger{zap: z, sugar: z.Sugar()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) { l.zap.Debug(msg) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an info message
func (l *Logger) Info(msg string) { l.zap.Info(msg) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(msg string) { l.zap.Warn(msg) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(msg string) { l.zap.Error(msg) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes any buffered log entries
func (l *Logger) Sync() error { return l.zap.Sync() }

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLogger
}

// SetLogger sets the global logger instance
func SetLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// LevelFromString converts a string to a log level
func LevelFromString(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Package-level convenience functions that log to the global logger

// Debug logs a debug message to the global logger
func Debug(msg string) { GetLogger().Debug(msg) }

// Debugf logs a formatted debug message to the global logger
func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }

// Info logs an info message to the global logger
func Info(msg string) { GetLogger().Info(msg) }

// Infof logs a formatted info message to the global logger
func Infof(format string, args ...interface{}) { GetLogger().Infof(format, args...) }

// Warn logs a warning message to the global logger
func Warn(msg string) { GetLogger().Warn(msg) }

// Warnf logs a formatted warning message to the global logger
func Warnf(format string, args ...interface{}) { GetLogger().Warnf(format, args...) }

// Error logs an error message to the global logger
func Error(msg string) { GetLogger().Error(msg) }

// Errorf logs a formatted error message to the global logger
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }

// WithField adds a field to the global logger
func WithField(key string, value interface{}) *Logger { return GetLogger().WithField(key, value) }

// WithFields adds fields to the global logger
func WithFields(fields map[string]interface{}) *Logger { return GetLogger().WithFields(fields) }

// WithError adds error context to the global logger
func WithError(err error) *Logger { return GetLogger().WithError(err) }
