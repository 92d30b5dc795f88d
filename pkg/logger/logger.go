package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig controls how the process-wide zap logger is built
type LoggerConfig struct {
	// Debug switches to the human readable development encoder at debug level
	Debug bool
}

// NewLogger creates a zap logger from the given config.
// A nil config produces the production (JSON, info level) logger.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg != nil && cfg.Debug {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return l, nil
}

// NewNopLogger returns a logger that discards everything. Used by library
// constructors when the caller passes a nil logger.
func NewNopLogger() *zap.Logger {
	return zap.NewNop()
}
