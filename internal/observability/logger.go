package observability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the base logger.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL"         envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT"   envDefault:"false"`
	File        string `env:"LOG_FILE"`
	MaxSizeMB   int    `env:"LOG_MAX_SIZE_MB"   envDefault:"100"`
	MaxBackups  int    `env:"LOG_MAX_BACKUPS"   envDefault:"5"`
	MaxAgeDays  int    `env:"LOG_MAX_AGE_DAYS"  envDefault:"30"`
}

// Global logger instance - shared across the application.
// This is intentional: loggers should not be stored in context.
//
//nolint:gochecknoglobals // Singleton logger is a standard pattern
var (
	globalLogger *zap.Logger
	loggerMu     sync.RWMutex
)

// InitLogger initializes the base logger (called once at startup).
// When a log file is configured, output is tee'd to stdout and a rotating file.
func InitLogger(cfg *LogConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LogConfig{Level: "info"}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if cfg.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	SetLogger(logger)

	return logger, nil
}

// SetLogger replaces the base logger. Tests use it to install zaptest or nop loggers.
func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	globalLogger = logger
	loggerMu.Unlock()
}

// getBaseLogger returns the global logger instance.
func getBaseLogger() *zap.Logger {
	loggerMu.RLock()
	logger := globalLogger
	loggerMu.RUnlock()

	if logger == nil {
		// Fallback to production logger if not initialized
		logger, _ = zap.NewProduction()
	}

	return logger
}

// FromContext returns the base logger enriched with the correlation ids in ctx.
func FromContext(ctx context.Context) *zap.Logger {
	return getBaseLogger().With(ContextFields(ctx)...)
}
