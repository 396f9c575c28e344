package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, level, err := New(Options{Development: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	logger.Info("development logger ready")
}

func TestNewProductionLoggerWithLevel(t *testing.T) {
	t.Parallel()

	logger, level, err := New(Options{Level: "WARN"})
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	level.SetLevel(zapcore.InfoLevel)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel), "level changes apply to built loggers")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)
}
