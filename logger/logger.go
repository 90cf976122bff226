// Package logger installs the process-wide zap logger.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds a logger for env and makes it the global one returned by
// zap.L(). "production" logs JSON at info level; anything else logs
// console output at debug level.
func Init(env string) error {
	var cfg zap.Config
	switch env {
	case "production", "prod":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger -> %w", err)
	}
	zap.ReplaceGlobals(l.With(zap.String("service", "prize-wheel")))
	return nil
}

// Sync flushes the global logger. Errors from syncing stderr are ignored.
func Sync() {
	_ = zap.L().Sync()
}
