package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance.
var L *zap.Logger

// `level` can be "debug", "info", "warn", "error", "fatal", "panic".
// `isProduction` determines whether the logger uses JSON format (production)
// or console format (development).
func InitLogger(level string, isProduction bool) error {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
		fmt.Fprintf(os.Stderr, "Warning: Invalid log level '%s', using default 'info'. Error: %v\n", level, err)
	}

	var err error
	if isProduction {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		L, err = config.Build(zap.AddCallerSkip(1))
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		L, err = config.Build(zap.AddCallerSkip(1))
	}

	if err != nil {
		return fmt.Errorf("failed to initialize zap logger: %w", err)
	}

	L.Info("Zap logger initialized", zap.String("level", zapLevel.String()), zap.Bool("productionMode", isProduction))
	return nil
}

// Sync flushes any buffered log entries. Call before the process exits.
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
