package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm/logger"
)

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	dev, err := NewLogger("", true)
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, GormLogLevel("debug"))
	assert.Equal(t, logger.Warn, GormLogLevel(""))
	assert.Equal(t, logger.Warn, GormLogLevel("warning"))
	assert.Equal(t, logger.Error, GormLogLevel("error"))
}
