// Package logging provides structured logging built on zap.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log level and output format.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "console"
}

var logger = zap.NewNop()

// Init configures the global logger. Must be called before any log output.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "", "console":
		zapCfg = zap.NewDevelopmentConfig()
	case "json":
		zapCfg = zap.NewProductionConfig()
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger = l
	return nil
}

// L returns the global logger.
func L() *zap.Logger {
	return logger
}

// Sync flushes buffered log entries.
func Sync() {
	_ = logger.Sync()
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// Fatal logs at fatal level and exits.
func Fatal(msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
}
