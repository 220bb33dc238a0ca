// Package logging provides structured logging for the occupancy node.
//
// It wraps a process-wide zap logger. Initialize it once at startup:
//
//	if err := logging.Initialize("info", "console"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// and log with structured fields:
//
//	logging.Info("state confirmed",
//	    zap.String("state", "LOCKED"),
//	    zap.Duration("held", 100*time.Millisecond),
//	)
//
// All functions are safe for concurrent use.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar overrides the configured level when set.
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "OCCUPANCY_LOG_LEVEL"

// Initialize creates the logger. An OCCUPANCY_LOG_LEVEL environment value
// takes precedence over level; an empty level means "info". Format is
// "console" (default) or "json".
func Initialize(level, format string) error {
	if env := os.Getenv(LogLevelEnvVar); env != "" {
		level = env
	}

	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	var config zap.Config
	switch format {
	case "", "console":
		config = zap.Config{
			Level:            zap.NewAtomicLevelAt(zapLevel),
			Encoding:         "console",
			EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	case "json":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// SetLogger replaces the process logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Not initialized (tests, print-state): stay silent
		return zap.NewNop()
	}
	return logger
}

// Sync flushes any buffered log entries
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}
