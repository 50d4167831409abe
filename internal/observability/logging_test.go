package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/shardgate/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_Console(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "trace", Format: "json"})
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestComponent_TagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Component(zap.New(core), "registry").Info("bound")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "registry", entries[0].LoggerName)
	assert.Equal(t, "registry", entries[0].ContextMap()["component"])
}

func TestNewCore_JSONEntryShape(t *testing.T) {
	var buf bytes.Buffer
	core, err := newCore(config.LoggingConfig{Level: "info", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	zap.New(core).With(zap.String("service", ServiceName)).Info("session issued", zap.String("name", "alice"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "session issued", entry["msg"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "alice", entry["name"])
	assert.Contains(t, entry, "ts")
}

func TestNewCore_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	core, err := newCore(config.LoggingConfig{Level: "warn", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger := zap.New(core)
	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
