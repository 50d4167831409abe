// Package observability provides structured logging for the gateway.
package observability

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/shardgate/internal/config"
)

// ServiceName is attached to every log entry produced by NewLogger.
const ServiceName = "shardgate"

// JSON output is sampled: per second, the first 100 identical entries pass,
// then every 100th.
const (
	sampleTick       = time.Second
	sampleFirst      = 100
	sampleThereafter = 100
)

// NewLogger creates a structured logger writing to stderr.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	core, err := newCore(cfg, zapcore.Lock(os.Stderr))
	if err != nil {
		return nil, err
	}
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Format == "console" {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...).With(zap.String("service", ServiceName)), nil
}

// newCore builds the encoder and level filter for cfg over out.
func newCore(cfg config.LoggingConfig, out zapcore.WriteSyncer) (zapcore.Core, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	switch cfg.Format {
	case "json":
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), out, level)
		return zapcore.NewSamplerWithOptions(core, sampleTick, sampleFirst, sampleThereafter), nil
	case "console":
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), out, level), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// Component returns a child logger tagged with the given component name.
//
// Precondition: logger must be non-nil.
func Component(logger *zap.Logger, name string) *zap.Logger {
	return logger.Named(name).With(zap.String("component", name))
}
